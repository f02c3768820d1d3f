package router

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/quietloop/gosponge/pkg/config"
)

// DNSResolver resolves hostnames to IPv4 addresses with a small
// in-memory TTL cache, for route configs whose next hop is given as a
// hostname rather than a literal address. This is the only networking
// I/O anywhere in this module, and it only ever runs at config-load
// time, never on the per-segment data path.
type DNSResolver struct {
	client   *dns.Client
	upstream string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	ip      net.IP
	expires time.Time
}

// NewDNSResolver returns a DNSResolver querying upstream (host:port,
// e.g. "8.8.8.8:53"). An empty upstream defaults to "8.8.8.8:53".
func NewDNSResolver(upstream string) *DNSResolver {
	if upstream == "" {
		upstream = "8.8.8.8:53"
	}
	return &DNSResolver{
		client:   &dns.Client{Timeout: 5 * time.Second},
		upstream: upstream,
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve looks up the A record for host, consulting (and refreshing)
// the resolver's cache.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	r.mu.Lock()
	if entry, ok := r.cache[host]; ok && time.Now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.ip, nil
	}
	r.mu.Unlock()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	reply, _, err := r.client.ExchangeContext(ctx, msg, r.upstream)
	if err != nil {
		return nil, fmt.Errorf("router: resolving %s via %s: %w", host, r.upstream, err)
	}

	for _, rr := range reply.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ttl := time.Duration(a.Hdr.Ttl) * time.Second
		r.mu.Lock()
		r.cache[host] = cacheEntry{ip: a.A, expires: time.Now().Add(ttl)}
		r.mu.Unlock()
		return a.A, nil
	}

	return nil, fmt.Errorf("router: no A record for %s", host)
}

// ResolveRoutes converts config.RouteSpec values into the Route
// entries AddRoute expects, resolving hostname next hops through
// resolver. A nil resolver is fine as long as every spec's NextHop is
// either empty or a literal dotted IPv4 address; a hostname next hop
// with a nil resolver is a descriptive error rather than a panic.
func ResolveRoutes(ctx context.Context, specs []config.RouteSpec, resolver *DNSResolver) ([]Route, error) {
	routes := make([]Route, 0, len(specs))
	for _, spec := range specs {
		prefix := net.ParseIP(spec.Prefix)
		if prefix == nil {
			return nil, fmt.Errorf("router: invalid route prefix %q", spec.Prefix)
		}

		var nextHop net.IP
		if spec.NextHop != "" {
			if ip := net.ParseIP(spec.NextHop); ip != nil {
				nextHop = ip
			} else if resolver != nil {
				ip, err := resolver.Resolve(ctx, spec.NextHop)
				if err != nil {
					return nil, err
				}
				nextHop = ip
			} else {
				return nil, fmt.Errorf("router: next hop %q is a hostname but no DNSResolver was given", spec.NextHop)
			}
		}

		routes = append(routes, Route{
			Prefix:    prefix,
			PrefixLen: spec.PrefixLen,
			NextHop:   nextHop,
			Interface: spec.Interface,
		})
	}
	return routes, nil
}
