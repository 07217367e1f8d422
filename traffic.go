package ltesim

// traffic.go assembles the traffic plan of a scenario: the set of
// flows, each with its endpoints, sizes and [start, stop) schedule,
// that the simulator turns into live generators and sinks.

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// FlowKind distinguishes periodic datagram streams from byte-budget bulk transfers
type FlowKind int

const (
	StreamFlow FlowKind = iota
	BulkFlow
)

func (fk FlowKind) String() string {
	if fk == BulkFlow {
		return "bulk"
	}
	return "stream"
}

// well-known destination ports of the traffic families
const (
	VideoPort          uint16 = 100
	FtpPort            uint16 = 21
	BackgroundBulkPort uint16 = 5001
	BackgroundDgrmPort uint16 = 5002
)

// TrafficFlow describes one logical flow.  It is created once during plan
// assembly and never modified afterwards.
type TrafficFlow struct {
	Name     string
	Kind     FlowKind
	Protocol Protocol
	Src      EndpointHandle
	Dst      EndpointHandle
	Port     uint16

	// payload bytes per datagram (stream) or per send call (bulk)
	PacketSize int

	// stream only: packet budget and spacing
	MaxPackets uint32
	Interval   time.Duration

	// bulk only: byte budget
	MaxBytes uint64

	Start time.Duration
	Stop  time.Duration
}

// Validate checks the flow against the simulated duration of the run
func (tf *TrafficFlow) Validate(duration time.Duration) error {
	switch {
	case !tf.Src.Valid() || !tf.Dst.Valid():
		return configErr(tf.Name, "flow endpoint not issued by the simulator")
	case tf.Src.ID == tf.Dst.ID:
		return configErr(tf.Name, "source and destination are the same endpoint %s", tf.Src.Name)
	case tf.Start < 0:
		return configErr(tf.Name, "start %s is negative", tf.Start)
	case tf.Stop <= tf.Start:
		return configErr(tf.Name, "stop %s not after start %s", tf.Stop, tf.Start)
	case tf.Stop > duration:
		return configErr(tf.Name, "stop %s beyond simulated duration %s", tf.Stop, duration)
	case tf.PacketSize <= 0:
		return configErr(tf.Name, "packet size must be positive, got %d", tf.PacketSize)
	}

	if tf.Kind == StreamFlow {
		if tf.Interval <= 0 {
			return configErr(tf.Name, "stream interval must be positive, got %s", tf.Interval)
		}
		if tf.MaxPackets == 0 {
			return configErr(tf.Name, "stream packet budget must be positive")
		}
	} else if tf.MaxBytes == 0 {
		return configErr(tf.Name, "bulk byte budget must be positive")
	}
	return nil
}

// TrafficPlan is the validated set of flows of one scenario
type TrafficPlan struct {
	Duration time.Duration
	Flows    []TrafficFlow
}

// NewTrafficPlan validates every flow against the duration and returns the plan.
// Nothing is returned unless all flows pass.
func NewTrafficPlan(duration time.Duration, flows ...TrafficFlow) (TrafficPlan, error) {
	if duration <= 0 {
		return TrafficPlan{}, configErr("simtime", "must be positive, got %s", duration)
	}
	errs := []error{}
	for idx := range flows {
		errs = append(errs, flows[idx].Validate(duration))
	}
	if err := errors.Join(errs...); err != nil {
		return TrafficPlan{}, err
	}
	return TrafficPlan{Duration: duration, Flows: slices.Clone(flows)}, nil
}

// Families returns the number of flows of each kind in the plan
func (tp *TrafficPlan) Families() (streams, bulks int) {
	for _, flow := range tp.Flows {
		if flow.Kind == BulkFlow {
			bulks += 1
		} else {
			streams += 1
		}
	}
	return streams, bulks
}

// BuildTrafficPlan maps the scenario's traffic families onto the UEs and the remote
// host.  The variant selects the families:
//
//   - streaming: UEs 0..StreamUEs-1 each receive periodic datagrams from the remote host
//   - bulk: UE FtpSender sends FtpDataSize bytes over TCP to UE FtpReceiver
//   - background: each UE used by no other family sends to the remote host,
//     bulk over TCP when its index is odd, datagrams when it is even
//
// Every referenced UE index must exist, and every flow runs over
// [TrafficStart, SimTime).
func BuildTrafficPlan(cfg *ScenarioConfig, ues []EndpointHandle, remote EndpointHandle) (TrafficPlan, error) {
	if !cfg.Variant.valid() {
		return TrafficPlan{}, configErr("variant", "unknown variant %q", cfg.Variant)
	}

	ueAt := func(field string, idx int) (EndpointHandle, error) {
		if idx < 0 || idx >= len(ues) {
			return EndpointHandle{}, configErr(field, "UE index %d out of range [0,%d)", idx, len(ues))
		}
		return ues[idx], nil
	}

	withBulk := cfg.Variant == VariantStreamFTP || cfg.Variant == VariantFull
	withBackground := cfg.Variant == VariantBackground || cfg.Variant == VariantFull

	flows := []TrafficFlow{}
	used := make(map[int]bool)

	if cfg.StreamUEs < 0 {
		return TrafficPlan{}, configErr("streamues", "must not be negative, got %d", cfg.StreamUEs)
	}
	for idx := 0; idx < cfg.StreamUEs; idx++ {
		ue, err := ueAt("streamues", idx)
		if err != nil {
			return TrafficPlan{}, err
		}
		used[idx] = true
		flows = append(flows, TrafficFlow{
			Name:       fmt.Sprintf("video-%d", idx),
			Kind:       StreamFlow,
			Protocol:   ProtoUDP,
			Src:        remote,
			Dst:        ue,
			Port:       VideoPort,
			PacketSize: cfg.VideoPacketSize,
			MaxPackets: cfg.VideoDataSize,
			Interval:   cfg.Interval,
			Start:      cfg.TrafficStart,
			Stop:       cfg.SimTime,
		})
	}

	if withBulk {
		sender, err := ueAt("ftpsender", cfg.FtpSender)
		if err != nil {
			return TrafficPlan{}, err
		}
		receiver, err := ueAt("ftpreceiver", cfg.FtpReceiver)
		if err != nil {
			return TrafficPlan{}, err
		}
		used[cfg.FtpSender] = true
		used[cfg.FtpReceiver] = true
		flows = append(flows, TrafficFlow{
			Name:       fmt.Sprintf("ftp-%d-%d", cfg.FtpSender, cfg.FtpReceiver),
			Kind:       BulkFlow,
			Protocol:   ProtoTCP,
			Src:        sender,
			Dst:        receiver,
			Port:       FtpPort,
			PacketSize: cfg.FtpPacketSize,
			MaxBytes:   cfg.FtpDataSize,
			Start:      cfg.TrafficStart,
			Stop:       cfg.SimTime,
		})
	}

	if withBackground {
		for idx, ue := range ues {
			if used[idx] {
				continue
			}
			if idx%2 == 1 {
				flows = append(flows, TrafficFlow{
					Name:       fmt.Sprintf("bg-bulk-%d", idx),
					Kind:       BulkFlow,
					Protocol:   ProtoTCP,
					Src:        ue,
					Dst:        remote,
					Port:       BackgroundBulkPort,
					PacketSize: cfg.FtpPacketSize,
					MaxBytes:   cfg.FtpDataSize,
					Start:      cfg.TrafficStart,
					Stop:       cfg.SimTime,
				})
			} else {
				flows = append(flows, TrafficFlow{
					Name:       fmt.Sprintf("bg-dgram-%d", idx),
					Kind:       StreamFlow,
					Protocol:   ProtoUDP,
					Src:        ue,
					Dst:        remote,
					Port:       BackgroundDgrmPort,
					PacketSize: cfg.VideoPacketSize,
					MaxPackets: cfg.VideoDataSize,
					Interval:   cfg.Interval,
					Start:      cfg.TrafficStart,
					Stop:       cfg.SimTime,
				})
			}
		}
	}

	return NewTrafficPlan(cfg.SimTime, flows...)
}
