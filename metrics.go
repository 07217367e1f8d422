package ltesim

// metrics.go reduces the raw per-flow counters of a finished run
// to throughput, delay, jitter and loss.  Each flow is reduced on
// its own; no aggregation across flows happens here.

import (
	"errors"
	"math"

	"golang.org/x/exp/slices"
)

// FlowMetrics holds the metrics derived for one flow.  A metric whose formula
// would divide by zero carries NaN (see IsUndefined).
type FlowMetrics struct {
	FlowID FlowID    `json:"flowid" yaml:"flowid"`
	Tuple  FiveTuple `json:"tuple" yaml:"tuple"`

	TxPackets uint64 `json:"txpackets" yaml:"txpackets"`
	TxBytes   uint64 `json:"txbytes" yaml:"txbytes"`
	RxPackets uint64 `json:"rxpackets" yaml:"rxpackets"`
	RxBytes   uint64 `json:"rxbytes" yaml:"rxbytes"`

	ThroughputKbps float64 `json:"throughputkbps" yaml:"throughputkbps"`
	DelaySumMs     float64 `json:"delaysumms" yaml:"delaysumms"`
	MeanDelayMs    float64 `json:"meandelayms" yaml:"meandelayms"`
	JitterSumMs    float64 `json:"jittersumms" yaml:"jittersumms"`
	MeanJitterMs   float64 `json:"meanjitterms" yaml:"meanjitterms"`
	LostPackets    int64   `json:"lostpackets" yaml:"lostpackets"`
	LossPercent    float64 `json:"losspercent" yaml:"losspercent"`
}

// ReduceFlow derives the metrics of one flow from its raw counters:
//
//	throughput  = rxBytes*8 / (lastRx - firstTx) / 1024          kbit/s, NaN when rxPackets = 0 or lastRx = firstTx
//	mean delay  = delaySum / rxPackets * 1000                    ms,     NaN when rxPackets = 0
//	mean jitter = jitterSum / (rxPackets-1) * 1000               ms,     NaN when rxPackets <= 1
//	lost        = txPackets - rxPackets
//	loss        = lost / txPackets * 100                         %,      NaN when txPackets = 0
//
// More packets received than transmitted is reported as a *DataIntegrityError.
func ReduceFlow(id FlowID, tuple FiveTuple, raw RawFlowCounters) (FlowMetrics, error) {
	if raw.RxPackets > raw.TxPackets {
		return FlowMetrics{}, &DataIntegrityError{FlowID: id, TxPackets: raw.TxPackets, RxPackets: raw.RxPackets}
	}

	fm := FlowMetrics{
		FlowID:         id,
		Tuple:          tuple,
		TxPackets:      raw.TxPackets,
		TxBytes:        raw.TxBytes,
		RxPackets:      raw.RxPackets,
		RxBytes:        raw.RxBytes,
		ThroughputKbps: math.NaN(),
		DelaySumMs:     raw.DelaySum * 1000,
		MeanDelayMs:    math.NaN(),
		JitterSumMs:    raw.JitterSum * 1000,
		MeanJitterMs:   math.NaN(),
		LostPackets:    int64(raw.TxPackets - raw.RxPackets),
		LossPercent:    math.NaN(),
	}

	if raw.RxPackets > 0 {
		window := raw.TimeLastRx - raw.TimeFirstTx
		if window > 0 {
			fm.ThroughputKbps = float64(raw.RxBytes) * 8.0 / window / 1024
		}
		fm.MeanDelayMs = (raw.DelaySum / float64(raw.RxPackets)) * 1000
	}
	if raw.RxPackets > 1 {
		fm.MeanJitterMs = (raw.JitterSum / float64(raw.RxPackets-1)) * 1000
	}
	if raw.TxPackets > 0 {
		fm.LossPercent = float64(fm.LostPackets) / float64(raw.TxPackets) * 100
	}
	return fm, nil
}

// CounterSource is the read side of a finished simulation run
type CounterSource interface {
	RawCounters() map[FlowID]RawFlowCounters
	ClassifyFlow(FlowID) (FiveTuple, bool)
}

// ReduceAll reduces every flow the source reports, ordered by FlowID.
// Flows whose counters fail the integrity check, or that the source cannot
// classify, are left out of the result and their errors are returned joined;
// the remaining flows are still reduced.
func ReduceAll(src CounterSource) ([]FlowMetrics, error) {
	counters := src.RawCounters()

	ids := make([]FlowID, 0, len(counters))
	for id := range counters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	metrics := make([]FlowMetrics, 0, len(ids))
	errs := []error{}
	for _, id := range ids {
		tuple, ok := src.ClassifyFlow(id)
		if !ok {
			errs = append(errs, &UnclassifiedFlowError{FlowID: id})
			continue
		}
		fm, err := ReduceFlow(id, tuple, counters[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		metrics = append(metrics, fm)
	}
	return metrics, errors.Join(errs...)
}
