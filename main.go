package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/controlkit/checkout/pkg/checker"
	"github.com/controlkit/checkout/pkg/loader"
	"github.com/controlkit/checkout/pkg/resolver"
	"github.com/controlkit/checkout/pkg/storer"
)

// serviceConfig configures the on-demand checkout service. Values come from
// an optional YAML file (SERVICE_CONFIG) overlaid with environment
// variables.
type serviceConfig struct {
	Bind           string        `yaml:"bind" env:"BIND_ADDR" env-default:"0.0.0.0:8080"`
	ConfigPath     string        `yaml:"config_path" env:"CHECKOUT_CONFIG" env-required:"true"`
	SamplesPath    string        `yaml:"samples_path" env:"CHECKOUT_SAMPLES" env-required:"true"`
	StorerURI      string        `yaml:"storer_uri" env:"DATABASE_URL" env-default:"stdout"`
	StorerCACert   string        `yaml:"storer_ca_cert" env:"DATABASE_CA_CERT"`
	Gateway        string        `yaml:"gateway" env:"GATEWAY_ADDR"`
	GatewayCIDR    string        `yaml:"gateway_cidr" env:"GATEWAY_CIDR"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" env:"RESOLVE_TIMEOUT" env-default:"6s"`
	Concurrency    int           `yaml:"concurrency" env:"CONCURRENCY" env-default:"32"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"debug"`
}

func main() {
	var cfg serviceConfig
	var err error
	if path := os.Getenv("SERVICE_CONFIG"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("loading service config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing log level")
	}
	zerolog.SetGlobalLevel(level)
	ll := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := ll.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if cfg.Gateway != "" {
		if err := resolver.Preflight(ctx, cfg.Gateway, cfg.GatewayCIDR); err != nil {
			log.Fatal().Err(err).Msg("gateway preflight failed")
		}
	}

	file, err := loader.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading checkout configuration")
	}

	res, err := loadSamples(cfg.SamplesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading sample table")
	}

	s, err := storer.New(ctx, cfg.StorerURI, cfg.StorerCACert, true)
	if err != nil {
		log.Fatal().Err(err).Msg("creating storer")
	}
	defer s.Close()

	eval := checker.New(
		checker.WithResolver(res),
		checker.WithResolveTimeout(cfg.ResolveTimeout),
		checker.WithConcurrency(cfg.Concurrency),
	)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusOK), http.StatusOK)
	})
	r.Get("/run", func(w http.ResponseWriter, req *http.Request) {
		rctx := req.Context()
		only := req.URL.Query()["config"]
		report := eval.EvaluateRun(rctx, file, only...)
		s.AsyncQueryRetry(ctx, storer.SaveBackOffSchedule, func(ctx context.Context, attempt int) error {
			return s.SaveRunReport(ctx, report)
		})
		w.Header().Add("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := writeJSON(w, report); err != nil {
			log.Ctx(rctx).Warn().Err(err).Msg("encoding run report")
		}
	})

	server := http.Server{
		Addr:    cfg.Bind,
		Handler: r,
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutting down server")
		}
	}()

	log.Ctx(ctx).Info().Str("addr", cfg.Bind).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func writeJSON(w io.Writer, v any) error {
	j := json.NewEncoder(w)
	j.SetIndent("", "  ")
	return j.Encode(v)
}

// loadSamples reads an identifier->value table used to rehearse checkouts
// without a live transport. The live channel-access transport ships as a
// separate binary implementing resolver.Resolver.
func loadSamples(path string) (resolver.Resolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return resolver.NewStaticValues(values), nil
}
