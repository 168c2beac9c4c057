package resolver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// Preflight verifies the value gateway's hostname resolves before a run
// starts, so a misconfigured transport fails fast instead of surfacing as
// hundreds of disconnected identifiers. When cidr is non-empty, at least
// one resolved address must fall inside it; a gateway resolving outside its
// expected subnet usually means split-horizon DNS is wrong.
func Preflight(ctx context.Context, gateway, cidr string) error {
	host, err := hostOnly(gateway)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkCIDR([]net.IP{ip}, cidr)
	}

	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return fmt.Errorf("reading resolver config: %w", err)
	}
	if len(conf.Servers) == 0 {
		return fmt.Errorf("no nameservers in %s", resolvConf)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	c := new(dns.Client)
	r, _, err := c.ExchangeContext(ctx, m, net.JoinHostPort(conf.Servers[0], conf.Port))
	if err != nil {
		return fmt.Errorf("querying %q: %w", host, err)
	}

	var ips []net.IP
	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	if len(ips) == 0 {
		return fmt.Errorf("no addresses found for gateway %q", host)
	}
	return checkCIDR(ips, cidr)
}

func checkCIDR(ips []net.IP, cidr string) error {
	if cidr == "" {
		return nil
	}
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("parsing gateway CIDR: %w", err)
	}
	for _, ip := range ips {
		if subnet.Contains(ip) {
			return nil
		}
	}
	return fmt.Errorf("gateway resolved to %v, none within %s", ips, cidr)
}

// hostOnly isolates the hostname from a URL, host:port pair, or bare host.
func hostOnly(gateway string) (string, error) {
	host := gateway
	if strings.Contains(gateway, "://") {
		u, err := url.Parse(gateway)
		if err != nil {
			return "", fmt.Errorf("parsing gateway address: %w", err)
		}
		if u.Host != "" {
			host = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "", fmt.Errorf("no hostname in gateway address %q", gateway)
	}
	return host, nil
}
