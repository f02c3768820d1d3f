// Package router implements longest-prefix-match IPv4 routing over a
// set of netif.NetworkInterface link layers.
package router

import (
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/quietloop/gosponge/pkg/netif"
)

// Route is one entry in the routing table.
type Route struct {
	Prefix    net.IP // the route's network address
	PrefixLen uint8  // how many leading bits of Prefix must match
	NextHop   net.IP // nil for a directly attached network
	Interface int    // index into Router's interface list
}

// Router forwards datagrams between attached interfaces by longest
// prefix match, decrementing TTL and dropping datagrams that expire or
// match no route.
type Router struct {
	log *slog.Logger

	interfaces []*netif.NetworkInterface
	table      []Route
}

// New returns an empty Router.
func New(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// AttachInterface registers an interface and returns its index, for use
// in AddRoute.
func (r *Router) AttachInterface(n *netif.NetworkInterface) int {
	r.interfaces = append(r.interfaces, n)
	return len(r.interfaces) - 1
}

// AddRoute appends a route to the table. Later routes of equal prefix
// length never take priority over earlier ones: the first inserted
// route among a tie wins.
func (r *Router) AddRoute(prefix net.IP, prefixLen uint8, nextHop net.IP, interfaceIndex int) {
	r.log.Debug("router: adding route", "prefix", prefix, "prefix_len", prefixLen, "next_hop", nextHop, "interface", interfaceIndex)
	r.table = append(r.table, Route{
		Prefix:    prefix,
		PrefixLen: prefixLen,
		NextHop:   nextHop,
		Interface: interfaceIndex,
	})
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

// RouteOneDatagram decrements dgram's TTL and forwards it out the
// matching interface, or drops it if the TTL expires or no route
// matches.
func (r *Router) RouteOneDatagram(dgram netif.Datagram) {
	if dgram.TTL == 0 {
		return
	}
	dgram.TTL--
	if dgram.TTL == 0 {
		return
	}

	dst := ipToUint32(dgram.Dst)

	var (
		found   bool
		bestLen uint8
		bestIdx int
	)
	for i, route := range r.table {
		if route.PrefixLen < bestLen {
			continue
		}
		if found && route.PrefixLen == bestLen {
			continue // earlier insertion already holds the tie
		}
		if route.PrefixLen == 0 || matchesPrefix(dst, ipToUint32(route.Prefix), route.PrefixLen) {
			found = true
			bestLen = route.PrefixLen
			bestIdx = i
		}
	}

	if !found {
		r.log.Debug("router: no matching route, dropping", "dst", dgram.Dst)
		return
	}

	route := r.table[bestIdx]
	nextHop := route.NextHop
	if nextHop == nil {
		nextHop = dgram.Dst
	}
	r.interfaces[route.Interface].SendDatagram(dgram, nextHop)
}

func matchesPrefix(dst, prefix uint32, prefixLen uint8) bool {
	if prefixLen == 0 {
		return true
	}
	shift := 32 - prefixLen
	return (dst^prefix)>>shift == 0
}

// Route drains every attached interface's inbound datagram queue and
// routes each datagram it finds there.
func (r *Router) Route() {
	for _, n := range r.interfaces {
		for _, dgram := range n.DatagramsOut() {
			r.RouteOneDatagram(dgram)
		}
	}
}
