package observability

import (
	"math"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iti/ltesim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

var videoFlow = ltesim.FlowMetrics{
	FlowID: 1,
	Tuple: ltesim.FiveTuple{
		SrcAddr:  netip.MustParseAddr("1.0.0.2"),
		DstAddr:  netip.MustParseAddr("7.0.0.2"),
		SrcPort:  49153,
		DstPort:  100,
		Protocol: ltesim.ProtoUDP,
	},
	TxPackets:      1000,
	RxPackets:      950,
	ThroughputKbps: 612.5,
	MeanDelayMs:    12.5,
	MeanJitterMs:   0.4,
	LostPackets:    50,
	LossPercent:    5,
}

var videoLabels = []string{"1", "1.0.0.2:49153", "7.0.0.2:100", "UDP"}

func TestObserveSetsFlowGauges(t *testing.T) {
	collector, err := NewFlowCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewFlowCollector: %v", err)
	}

	idle := videoFlow
	idle.FlowID = 2
	idle.RxPackets = 0
	idle.ThroughputKbps = math.NaN()
	idle.MeanDelayMs = math.NaN()
	idle.MeanJitterMs = math.NaN()
	collector.Observe([]ltesim.FlowMetrics{videoFlow, idle})

	if got := testutil.ToFloat64(collector.Throughput.WithLabelValues(videoLabels...)); got != 612.5 {
		t.Fatalf("throughput = %v, want 612.5", got)
	}
	if got := testutil.ToFloat64(collector.Loss.WithLabelValues(videoLabels...)); got != 5 {
		t.Fatalf("loss = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.TxPackets.WithLabelValues(videoLabels...)); got != 1000 {
		t.Fatalf("tx packets = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(collector.Flows); got != 2 {
		t.Fatalf("flows = %v, want 2", got)
	}

	idleLabels := map[string]string{"flow_id": "2"}
	if v, ok := gaugeValue(t, collector.gatherer, "ltesim_flow_mean_delay_ms", idleLabels); !ok || !math.IsNaN(v) {
		t.Fatalf("delay of a flow with nothing received = %v (found %v), want NaN", v, ok)
	}
	if got := testutil.CollectAndCount(collector.Delay); got != 2 {
		t.Fatalf("delay series = %d, want 2", got)
	}
}

func TestRecordIntegrityErrors(t *testing.T) {
	collector, err := NewFlowCollector(nil)
	if err != nil {
		t.Fatalf("NewFlowCollector: %v", err)
	}
	collector.RecordIntegrityErrors(2)
	collector.RecordIntegrityErrors(0)
	collector.RecordIntegrityErrors(1)
	if got := testutil.ToFloat64(collector.IntegrityErrors); got != 3 {
		t.Fatalf("integrity errors = %v, want 3", got)
	}

	var nilCollector *FlowCollector
	nilCollector.Observe([]ltesim.FlowMetrics{videoFlow})
	nilCollector.RecordIntegrityErrors(1)
}

func TestNewFlowCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewFlowCollector(reg)
	if err != nil {
		t.Fatalf("NewFlowCollector: %v", err)
	}
	second, err := NewFlowCollector(reg)
	if err != nil {
		t.Fatalf("second NewFlowCollector: %v", err)
	}
	if first.Throughput != second.Throughput || first.Flows != second.Flows {
		t.Fatalf("second collector did not reuse the registered metrics")
	}
}

func TestWriteTextfile(t *testing.T) {
	collector, err := NewFlowCollector(nil)
	if err != nil {
		t.Fatalf("NewFlowCollector: %v", err)
	}
	collector.Observe([]ltesim.FlowMetrics{videoFlow})

	filename := filepath.Join(t.TempDir(), "ltesim.prom")
	if err := collector.WriteTextfile(filename); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	bytes, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	body := string(bytes)
	for _, want := range []string{
		"ltesim_flow_throughput_kbps",
		"ltesim_flow_loss_percent",
		`flow_id="1"`,
		`src="1.0.0.2:49153"`,
		"ltesim_flows 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, body)
		}
	}

	if err := collector.WriteTextfile(filepath.Join(t.TempDir(), "missing", "ltesim.prom")); err == nil {
		t.Fatalf("textfile written into a missing directory")
	}
}

func gaugeValue(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) (float64, bool) {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetGauge() != nil {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
