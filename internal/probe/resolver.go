package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"conncheck/internal/domain"
)

const (
	defaultDNSTimeout = 3 * time.Second
	resolvConfPath    = "/etc/resolv.conf"
)

// SystemLookup resolves a hostname through the OS resolver (getaddrinfo
// path). It is a field so tests can substitute the real system.
type SystemLookup func(ctx context.Context, host string) ([]string, error)

// Resolver answers hostname resolution checks. A and AAAA lookups go to the
// configured DNS servers directly; only when both come back empty is the
// system resolver consulted, which also covers hosts-file names.
type Resolver struct {
	// Servers are "host:port" DNS server addresses. Empty means read
	// /etc/resolv.conf at resolve time.
	Servers []string
	// System is the fallback lookup. Nil means net.DefaultResolver.
	System SystemLookup
}

func NewResolver() *Resolver { return &Resolver{} }

// Resolve processes every hostname independently; one hostname failing never
// stops the others. The returned error covers resolver configuration only
// (an unreadable resolv.conf), which fails the whole section.
func (r *Resolver) Resolve(ctx context.Context, hostnames []string, timeout time.Duration) (domain.DNSSection, error) {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	servers := r.Servers
	if len(servers) == 0 {
		conf, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil {
			return domain.DNSSection{}, fmt.Errorf("resolver config: %w", err)
		}
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}

	client := &dns.Client{Timeout: timeout}
	var out domain.DNSSection
	for _, host := range hostnames {
		out.Put(r.resolveOne(ctx, client, servers, host, timeout))
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, client *dns.Client, servers []string, host string, timeout time.Duration) (res domain.Resolution) {
	res = domain.Resolution{
		Hostname:  host,
		Addresses: []string{},
		CNAME:     []string{},
	}
	start := time.Now()
	defer func() {
		res.LatencyMS = time.Since(start).Milliseconds()
	}()

	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := queryAddresses(ctx, client, servers, host, qtype)
		if err != nil {
			continue // a failing record type never fails the hostname
		}
		addrs = append(addrs, found...)
	}

	if chain, err := queryCNAME(ctx, client, servers, host); err == nil && len(chain) > 0 {
		res.CNAME = chain
	}

	if len(addrs) == 0 {
		if found, err := r.systemLookup(ctx, host, timeout); err == nil {
			addrs = append(addrs, found...)
		}
	}

	res.Addresses = dedupeSorted(addrs)
	res.Resolved = len(res.Addresses) > 0
	return res
}

func queryAddresses(ctx context.Context, client *dns.Client, servers []string, host string, qtype uint16) ([]string, error) {
	reply, err := exchange(ctx, client, servers, host, qtype)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, rr := range reply.Answer {
		switch record := rr.(type) {
		case *dns.A:
			addrs = append(addrs, record.A.String())
		case *dns.AAAA:
			addrs = append(addrs, record.AAAA.String())
		}
	}
	return addrs, nil
}

func queryCNAME(ctx context.Context, client *dns.Client, servers []string, host string) ([]string, error) {
	reply, err := exchange(ctx, client, servers, host, dns.TypeCNAME)
	if err != nil {
		return nil, err
	}
	var chain []string
	for _, rr := range reply.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			chain = append(chain, strings.TrimSuffix(cname.Target, "."))
		}
	}
	return chain, nil
}

// exchange asks each server in order and returns the first reply, whatever
// its rcode. Empty or refused answers are still answers; only transport
// failures against every server count as an error.
func exchange(ctx context.Context, client *dns.Client, servers []string, host string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)

	var lastErr error
	for _, server := range servers {
		reply, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		return reply, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no dns servers configured")
	}
	return nil, lastErr
}

func (r *Resolver) systemLookup(ctx context.Context, host string, timeout time.Duration) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	lookup := r.System
	if lookup == nil {
		lookup = func(ctx context.Context, h string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, h)
		}
	}
	return lookup(cctx, host)
}

func dedupeSorted(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
