package ltesim

import (
	"fmt"
	"net/netip"
)

// EndpointID is an opaque identifier handed out by a Simulator
type EndpointID int

// Role describes what a node does in the topology
type Role int

const (
	RoleUnknown Role = iota
	RoleRemoteHost
	RolePGW
	RoleSGW
	RoleMME
	RoleENodeB
	RoleUE
)

var roleToStr = map[Role]string{
	RoleUnknown:    "unknown",
	RoleRemoteHost: "remotehost",
	RolePGW:        "pgw",
	RoleSGW:        "sgw",
	RoleMME:        "mme",
	RoleENodeB:     "enodeb",
	RoleUE:         "ue",
}

func (r Role) String() string {
	if s, present := roleToStr[r]; present {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// EndpointHandle names a node created by a Simulator.  Flows refer to
// endpoints only through handles, never by position in a container.
type EndpointHandle struct {
	ID   EndpointID `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	Role Role       `json:"role" yaml:"role"`

	// zero Addr for nodes without an IP stack (eNB, MME, SGW)
	Addr netip.Addr `json:"addr" yaml:"addr"`
}

// Valid reports whether the handle was issued by a Simulator
func (eh EndpointHandle) Valid() bool {
	return eh.ID > 0
}

func (eh EndpointHandle) String() string {
	if eh.Addr.IsValid() {
		return fmt.Sprintf("%s(%s)", eh.Name, eh.Addr)
	}
	return eh.Name
}

// CoreNodes holds the named handles of the wired core, returned directly by
// the call that builds it
type CoreNodes struct {
	Remote EndpointHandle `json:"remote" yaml:"remote"`
	PGW    EndpointHandle `json:"pgw" yaml:"pgw"`
	SGW    EndpointHandle `json:"sgw" yaml:"sgw"`
	MME    EndpointHandle `json:"mme" yaml:"mme"`
}

// Protocol is the transport carried by a flow
type Protocol uint8

// IANA protocol numbers
const (
	ProtoTCP Protocol = 6
	ProtoUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// FlowID identifies the raw counters of one observed flow.  IDs are
// assigned from 1 in the order flows transmit their first packet.
type FlowID uint32

// FiveTuple is the key under which packets are classified into flows
type FiveTuple struct {
	SrcAddr  netip.Addr `json:"srcaddr" yaml:"srcaddr" xml:"sourceAddress,attr"`
	DstAddr  netip.Addr `json:"dstaddr" yaml:"dstaddr" xml:"destinationAddress,attr"`
	SrcPort  uint16     `json:"srcport" yaml:"srcport" xml:"sourcePort,attr"`
	DstPort  uint16     `json:"dstport" yaml:"dstport" xml:"destinationPort,attr"`
	Protocol Protocol   `json:"protocol" yaml:"protocol" xml:"protocol,attr"`
}

func (ft FiveTuple) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", ft.Protocol, ft.SrcAddr, ft.SrcPort, ft.DstAddr, ft.DstPort)
}

// Reverse returns the tuple of traffic flowing the other way
func (ft FiveTuple) Reverse() FiveTuple {
	return FiveTuple{SrcAddr: ft.DstAddr, DstAddr: ft.SrcAddr,
		SrcPort: ft.DstPort, DstPort: ft.SrcPort, Protocol: ft.Protocol}
}
