// Package netif implements the link layer a router or host sits
// behind: IPv4-to-Ethernet address resolution via ARP, with a queue of
// datagrams waiting on an address to resolve.
//
// Parsing and serializing Ethernet frames, ARP messages, and IPv4
// datagrams to and from wire bytes is out of scope here; this package
// operates on the parsed Go values (net.IP, net.HardwareAddr, and the
// Frame/ARPMessage/Datagram types below) the way the rest of this
// module does.
package netif

import (
	"log/slog"
	"net"
	"time"
)

const (
	// ArpEntryTTL is how long a learned IP-to-Ethernet mapping stays
	// valid.
	ArpEntryTTL = 30 * time.Second
	// PendingDatagramTTL is how long a datagram queued behind an
	// unresolved ARP request waits before Tick sends it again.
	PendingDatagramTTL = 5 * time.Second
	// ArpRequestSuppression is the minimum gap between two ARP requests
	// for the same IP address.
	ArpRequestSuppression = 5 * time.Second
)

var broadcastAddress = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EtherType identifies the payload carried by a Frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// Frame is a parsed Ethernet frame: a destination and source address,
// a payload type tag, and an opaque payload the caller is responsible
// for further decoding.
type Frame struct {
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	Type    EtherType
	Payload any // *ARPMessage or Datagram
}

// ARPOpcode distinguishes an ARP request from a reply.
type ARPOpcode uint16

const (
	ARPRequest ARPOpcode = 1
	ARPReply   ARPOpcode = 2
)

// ARPMessage is a parsed IPv4-over-Ethernet ARP message.
type ARPMessage struct {
	Opcode         ARPOpcode
	SenderEthernet net.HardwareAddr
	SenderIP       net.IP
	TargetEthernet net.HardwareAddr
	TargetIP       net.IP
}

// Datagram is the payload a NetworkInterface moves between the IP
// layer and the link layer. Route/Router reasons about its Dst/TTL;
// everything else is opaque.
type Datagram struct {
	Dst     net.IP
	TTL     uint8
	Payload []byte
}

type arpEntry struct {
	mac     net.HardwareAddr
	expires time.Time
}

type pendingDatagram struct {
	nextHop net.IP
	dgram   Datagram
	expires time.Time
}

// NetworkInterface resolves next-hop IP addresses to Ethernet addresses
// via ARP and queues outbound frames. Tick must be called with elapsed
// wall-clock time to age out ARP entries and pending datagrams; nothing
// here schedules its own timers or blocks.
type NetworkInterface struct {
	log *slog.Logger

	ethernetAddress net.HardwareAddr
	ipAddress       net.IP

	now time.Time

	arpTable        map[uint32]arpEntry
	pendingByIP     map[uint32]time.Time // last ARP request time, for suppression
	pendingDatagram []pendingDatagram

	framesOut    []Frame
	datagramsOut []Datagram // parsed inbound IPv4 datagrams, awaiting routing
}

// New returns a NetworkInterface bound to the given hardware and IP
// addresses.
func New(ethernetAddress net.HardwareAddr, ipAddress net.IP, log *slog.Logger) *NetworkInterface {
	if log == nil {
		log = slog.Default()
	}
	log.Debug("netif: interface up", "ethernet", ethernetAddress, "ip", ipAddress)
	return &NetworkInterface{
		log:             log,
		ethernetAddress: ethernetAddress,
		ipAddress:       ipAddress,
		arpTable:        make(map[uint32]arpEntry),
		pendingByIP:     make(map[uint32]time.Time),
	}
}

func ipKey(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Frames drains and returns the link-layer frames queued for
// transmission.
func (n *NetworkInterface) Frames() []Frame {
	out := n.framesOut
	n.framesOut = nil
	return out
}

// DatagramsOut drains and returns the IPv4 datagrams this interface has
// received and parsed, awaiting a Router to route them onward.
func (n *NetworkInterface) DatagramsOut() []Datagram {
	out := n.datagramsOut
	n.datagramsOut = nil
	return out
}

// SendDatagram sends dgram toward nextHop, resolving its Ethernet
// address via ARP first if it isn't already known.
func (n *NetworkInterface) SendDatagram(dgram Datagram, nextHop net.IP) {
	key := ipKey(nextHop)

	if entry, ok := n.arpTable[key]; ok && n.now.Before(entry.expires) {
		n.framesOut = append(n.framesOut, Frame{
			Dst:     entry.mac,
			Src:     n.ethernetAddress,
			Type:    EtherTypeIPv4,
			Payload: dgram,
		})
		return
	}

	if last, ok := n.pendingByIP[key]; ok && n.now.Before(last.Add(ArpRequestSuppression)) {
		n.log.Debug("netif: suppressing duplicate ARP request", "ip", nextHop)
	} else {
		n.framesOut = append(n.framesOut, Frame{
			Dst:  broadcastAddress,
			Src:  n.ethernetAddress,
			Type: EtherTypeARP,
			Payload: &ARPMessage{
				Opcode:         ARPRequest,
				SenderEthernet: n.ethernetAddress,
				SenderIP:       n.ipAddress,
				TargetIP:       nextHop,
			},
		})
		n.pendingByIP[key] = n.now
	}

	n.pendingDatagram = append(n.pendingDatagram, pendingDatagram{
		nextHop: nextHop,
		dgram:   dgram,
		expires: n.now.Add(PendingDatagramTTL),
	})
}

// RecvFrame processes an inbound frame. It returns the IPv4 datagram it
// carried, if any; ARP traffic is handled internally (learning the
// sender's mapping, answering requests addressed to us, and flushing
// any datagrams that were waiting on that mapping).
func (n *NetworkInterface) RecvFrame(frame Frame) (Datagram, bool) {
	isBroadcast := frame.Dst.String() == broadcastAddress.String()
	isForUs := frame.Dst.String() == n.ethernetAddress.String()
	if !isBroadcast && !isForUs {
		return Datagram{}, false
	}

	switch frame.Type {
	case EtherTypeIPv4:
		dgram, ok := frame.Payload.(Datagram)
		if ok {
			n.datagramsOut = append(n.datagramsOut, dgram)
		}
		return dgram, ok

	case EtherTypeARP:
		msg, ok := frame.Payload.(*ARPMessage)
		if !ok {
			return Datagram{}, false
		}
		n.learn(msg.SenderIP, msg.SenderEthernet)

		if msg.Opcode == ARPRequest && msg.TargetIP.Equal(n.ipAddress) {
			n.framesOut = append(n.framesOut, Frame{
				Dst:  msg.SenderEthernet,
				Src:  n.ethernetAddress,
				Type: EtherTypeARP,
				Payload: &ARPMessage{
					Opcode:         ARPReply,
					SenderEthernet: n.ethernetAddress,
					SenderIP:       n.ipAddress,
					TargetEthernet: msg.SenderEthernet,
					TargetIP:       msg.SenderIP,
				},
			})
		}

		n.flushPendingFor(msg.SenderIP)
	}

	return Datagram{}, false
}

func (n *NetworkInterface) learn(ip net.IP, mac net.HardwareAddr) {
	key := ipKey(ip)
	n.arpTable[key] = arpEntry{mac: mac, expires: n.now.Add(ArpEntryTTL)}
	delete(n.pendingByIP, key)
}

func (n *NetworkInterface) flushPendingFor(ip net.IP) {
	key := ipKey(ip)
	kept := n.pendingDatagram[:0:0]
	for _, p := range n.pendingDatagram {
		if ipKey(p.nextHop) == key {
			n.SendDatagram(p.dgram, p.nextHop)
			continue
		}
		kept = append(kept, p)
	}
	n.pendingDatagram = kept
}

// Tick advances the interface's clock, expiring stale ARP entries and
// retransmitting any datagram that has been waiting for an address to
// resolve longer than PendingDatagramTTL. The retransmit re-enters
// SendDatagram, which re-fires the ARP request if still unresolved
// (subject to ArpRequestSuppression) and re-queues the datagram.
func (n *NetworkInterface) Tick(elapsed time.Duration) {
	n.now = n.now.Add(elapsed)

	for key, entry := range n.arpTable {
		if !n.now.Before(entry.expires) {
			delete(n.arpTable, key)
		}
	}

	expired := n.pendingDatagram[:0:0]
	var kept []pendingDatagram
	for _, p := range n.pendingDatagram {
		if !n.now.Before(p.expires) {
			expired = append(expired, p)
			continue
		}
		kept = append(kept, p)
	}
	n.pendingDatagram = kept
	for _, p := range expired {
		n.log.Debug("netif: retransmitting datagram pending ARP resolution", "next_hop", p.nextHop)
		n.SendDatagram(p.dgram, p.nextHop)
	}
}
