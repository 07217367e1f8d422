package observability

import (
	"fmt"
	"strconv"

	"github.com/iti/ltesim"
	"github.com/prometheus/client_golang/prometheus"
)

var flowLabels = []string{"flow_id", "src", "dst", "protocol"}

// FlowCollector bundles the Prometheus gauges describing the per-flow
// metrics of one run.  Undefined metrics are exported as NaN.
type FlowCollector struct {
	gatherer prometheus.Gatherer

	Throughput *prometheus.GaugeVec
	Delay      *prometheus.GaugeVec
	Jitter     *prometheus.GaugeVec
	Loss       *prometheus.GaugeVec
	TxPackets  *prometheus.GaugeVec
	RxPackets  *prometheus.GaugeVec

	Flows           prometheus.Gauge
	IntegrityErrors prometheus.Counter
}

// NewFlowCollector registers the flow metrics against the provided registry,
// using a fresh one when nil.
func NewFlowCollector(reg *prometheus.Registry) (*FlowCollector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &FlowCollector{gatherer: reg}
	var err error

	specs := []struct {
		dst  **prometheus.GaugeVec
		name string
		help string
	}{
		{&c.Throughput, "ltesim_flow_throughput_kbps", "Received throughput of the flow over its active window, in kbit/s."},
		{&c.Delay, "ltesim_flow_mean_delay_ms", "Mean one-way delay of received packets, in ms."},
		{&c.Jitter, "ltesim_flow_mean_jitter_ms", "Mean delay variation between consecutive received packets, in ms."},
		{&c.Loss, "ltesim_flow_loss_percent", "Share of transmitted packets never received, in percent."},
		{&c.TxPackets, "ltesim_flow_tx_packets", "Packets transmitted by the flow."},
		{&c.RxPackets, "ltesim_flow_rx_packets", "Packets received for the flow."},
	}
	for _, spec := range specs {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: spec.name, Help: spec.help}, flowLabels)
		if *spec.dst, err = registerGaugeVec(reg, vec, spec.name); err != nil {
			return nil, err
		}
	}

	c.Flows, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ltesim_flows",
		Help: "Number of flows reduced in the run.",
	}), "ltesim_flows")
	if err != nil {
		return nil, err
	}
	c.IntegrityErrors, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ltesim_flow_integrity_errors_total",
		Help: "Flows excluded from the report because more packets were received than sent.",
	}), "ltesim_flow_integrity_errors_total")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Observe sets the gauges of every flow in metrics
func (c *FlowCollector) Observe(metrics []ltesim.FlowMetrics) {
	if c == nil {
		return
	}
	for _, fm := range metrics {
		labels := prometheus.Labels{
			"flow_id":  strconv.FormatUint(uint64(fm.FlowID), 10),
			"src":      fmt.Sprintf("%s:%d", fm.Tuple.SrcAddr, fm.Tuple.SrcPort),
			"dst":      fmt.Sprintf("%s:%d", fm.Tuple.DstAddr, fm.Tuple.DstPort),
			"protocol": fm.Tuple.Protocol.String(),
		}
		c.Throughput.With(labels).Set(fm.ThroughputKbps)
		c.Delay.With(labels).Set(fm.MeanDelayMs)
		c.Jitter.With(labels).Set(fm.MeanJitterMs)
		c.Loss.With(labels).Set(fm.LossPercent)
		c.TxPackets.With(labels).Set(float64(fm.TxPackets))
		c.RxPackets.With(labels).Set(float64(fm.RxPackets))
	}
	c.Flows.Set(float64(len(metrics)))
}

// RecordIntegrityErrors counts flows rejected by the reduction
func (c *FlowCollector) RecordIntegrityErrors(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.IntegrityErrors.Add(float64(n))
}

// WriteTextfile writes every gathered metric in the Prometheus text format,
// for pickup by a node exporter textfile collector.
func (c *FlowCollector) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, c.gatherer); err != nil {
		return fmt.Errorf("write metrics %s: %w", filename, err)
	}
	return nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
