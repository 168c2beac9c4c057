package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/controlkit/checkout/pkg/checker"
	"github.com/controlkit/checkout/pkg/loader"
	"github.com/controlkit/checkout/pkg/resolver"
	"github.com/controlkit/checkout/pkg/storer"
	"github.com/controlkit/checkout/pkg/types/check"
)

var ctx context.Context

var root = &cobra.Command{
	Use:   "checkout",
	Short: "run passive checkouts of control-system devices and PVs",
}

var run = &cobra.Command{
	Use:   "run <configuration-file>",
	Short: "evaluate a checkout configuration and report results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file, err := loader.Load(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("loading configuration")
		}

		samplesPath, err := cmd.Flags().GetString("samples")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing samples flag")
		}
		raw, err := os.ReadFile(samplesPath)
		if err != nil {
			log.Fatal().Err(err).Msg("reading sample table")
		}
		values := map[string]any{}
		if err := yaml.Unmarshal(raw, &values); err != nil {
			log.Fatal().Err(err).Msg("parsing sample table")
		}

		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing timeout flag")
		}
		only, err := cmd.Flags().GetStringArray("device")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing device flag")
		}

		eval := checker.New(
			checker.WithResolver(resolver.NewStaticValues(values)),
			checker.WithResolveTimeout(timeout),
		)
		report := eval.EvaluateRun(ctx, file, only...)
		logReport(report)

		if uri, _ := cmd.Flags().GetString("storer"); uri != "" {
			s, err := storer.New(ctx, uri, os.Getenv("DATABASE_CA_CERT"), true)
			if err != nil {
				log.Fatal().Err(err).Msg("creating storer")
			}
			defer s.Close()
			if err := s.SaveRunReport(ctx, report); err != nil {
				log.Fatal().Err(err).Msg("saving report")
			}
		}

		if report.Cancelled || report.Severity >= check.Error {
			os.Exit(1)
		}
	},
}

var analyze = &cobra.Command{
	Use:   "analyze",
	Short: "report the most recent failure per configuration",
	Run: func(cmd *cobra.Command, args []string) {
		uri, err := cmd.Flags().GetString("storer")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing storer flag")
		}
		if uri == "" {
			uri = os.Getenv("DATABASE_URL")
		}
		s, err := storer.New(ctx, uri, os.Getenv("DATABASE_CA_CERT"), false)
		if err != nil {
			log.Fatal().Err(err).Msg("creating storer")
		}
		defer s.Close()

		start, err := cmd.Flags().GetString("start")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing start flag")
		}
		startTS, err := time.ParseInLocation(time.RFC3339Nano, start, time.UTC)
		if err != nil {
			log.Fatal().Err(err).Msg("parsing start timestamp")
		}
		end, err := cmd.Flags().GetString("end")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing end flag")
		}
		endTS, err := time.ParseInLocation(time.RFC3339Nano, end, time.UTC)
		if err != nil {
			log.Fatal().Err(err).Msg("parsing end timestamp")
		}
		configs, err := cmd.Flags().GetStringArray("config")
		if err != nil {
			log.Fatal().Err(err).Msg("parsing config flag")
		}

		err = s.AnalyzeLastFailures(ctx, startTS, endTS, configs, func(f storer.Failure) {
			fmt.Printf("%s,%s,%v,%s\n", f.Configuration, f.Severity, f.TS, f.Reason)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("analyzing failures")
		}
	},
}

// logReport prints every verdict at a level matching its severity, so a
// terminal reader sees failures stand out while passes stay at debug.
func logReport(report check.RunReport) {
	for _, cr := range report.Configurations {
		if cr.Cancelled {
			log.Warn().Str("configuration", cr.Name).Msg("cancelled before evaluation completed")
			continue
		}
		passedOrFailed := "passed"
		if !cr.Passed {
			passedOrFailed = "FAILED"
		}
		log.Info().
			Str("configuration", cr.Name).
			Stringer("severity", cr.Severity).
			Msgf("configuration %s %s", cr.Name, passedOrFailed)
		for _, chk := range cr.Checks {
			for _, er := range chk.Evaluations {
				e := severityLog(er.Severity)
				e.Str("identifier", er.Identifier).Str("comparison", er.Comparison)
				if er.Reason != "" {
					e.Msg(er.Reason)
				} else {
					e.Msg("ok")
				}
			}
		}
	}
	if report.Cancelled {
		log.Warn().Msg("run cancelled; report is partial")
	}
}

func severityLog(s check.Severity) *zerolog.Event {
	switch s {
	case check.Success:
		return log.Debug()
	case check.Warning:
		return log.Warn()
	default:
		return log.Error()
	}
}

func init() {
	run.Flags().String("samples", "", "identifier->value sample table (YAML)")
	run.Flags().String("storer", "", "storer uri to persist the report")
	run.Flags().Duration("timeout", 6*time.Second, "per-resolution timeout")
	run.Flags().StringArray("device", nil, "limit the run to the named configuration(s)")
	run.MarkFlagRequired("samples")

	analyze.Flags().String("storer", "", "storer uri to read history from")
	analyze.Flags().String("start", "", "start timestamp")
	analyze.Flags().String("end", "", "end timestamp")
	analyze.Flags().StringArray("config", nil, "limit analysis to the named configuration(s)")

	root.AddCommand(run, analyze)
}

func main() {
	var stop func()
	ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
