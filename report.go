package ltesim

// report.go renders reduced flow metrics: the text report, the two
// graphable datasets, a CSV table and an aggregate summary.  Undefined
// metrics are passed through as NaN everywhere; nothing here fails on them.

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// stickyWriter remembers the first write error so a report can be written
// line by line and checked once
type stickyWriter struct {
	w   io.Writer
	err error
}

func (sw *stickyWriter) printf(format string, args ...any) {
	if sw.err != nil {
		return
	}
	_, sw.err = fmt.Fprintf(sw.w, format, args...)
}

// EnbStats are the radio settings of one eNB as printed before the flow report
type EnbStats struct {
	Index       int
	DlBandwidth int
	UlBandwidth int
	DlEarfcns   []int // one per component carrier
	UlEarfcns   []int
	UeTxPower   float64
}

// ScenarioEnbStats lists the radio settings of every eNB of the scenario.
// Secondary carriers sit one bandwidth above the previous one.
func ScenarioEnbStats(cfg *ScenarioConfig) []EnbStats {
	stats := make([]EnbStats, cfg.ENBs)
	for idx := range stats {
		es := EnbStats{Index: idx, DlBandwidth: cfg.DlBandwidth, UlBandwidth: cfg.UlBandwidth, UeTxPower: cfg.TxPower}
		for cc := 0; cc < cfg.ComponentCarriers(); cc++ {
			es.DlEarfcns = append(es.DlEarfcns, DefaultDlEarfcn+cc*cfg.DlBandwidth)
			es.UlEarfcns = append(es.UlEarfcns, DefaultUlEarfcn+cc*cfg.UlBandwidth)
		}
		stats[idx] = es
	}
	return stats
}

// WriteEnbStats writes one block per eNB
func WriteEnbStats(w io.Writer, stats []EnbStats) error {
	sw := &stickyWriter{w: w}
	for _, es := range stats {
		sw.printf("eNode %d Stats:\n", es.Index)
		sw.printf("Downlink BW: %d\n", es.DlBandwidth)
		sw.printf("Uplink BW: %d\n", es.UlBandwidth)
		for cc := range es.DlEarfcns {
			if cc == 0 {
				sw.printf("Downlink Earfcn: %d\n", es.DlEarfcns[cc])
				sw.printf("Uplink Earfcn: %d\n", es.UlEarfcns[cc])
				continue
			}
			sw.printf("Downlink Earfcn (CC %d): %d\n", cc, es.DlEarfcns[cc])
			sw.printf("Uplink Earfcn (CC %d): %d\n", cc, es.UlEarfcns[cc])
		}
		sw.printf("TxPower UE: %g\n", es.UeTxPower)
		sw.printf("---------------------------\n")
	}
	return sw.err
}

// WriteText writes one block per flow, in the order given, with the fields in
// the fixed order ids, addresses, ports, counts, throughput, delay, jitter, loss
func WriteText(w io.Writer, metrics []FlowMetrics) error {
	sw := &stickyWriter{w: w}
	sw.printf("\n*** Flow monitor statistic ***\n")
	for _, fm := range metrics {
		sw.printf("Flow ID: %d\n", fm.FlowID)
		sw.printf("Src add: %s-> Dst add: %s\n", fm.Tuple.SrcAddr, fm.Tuple.DstAddr)
		sw.printf("Src port: %d-> Dst port: %d\n", fm.Tuple.SrcPort, fm.Tuple.DstPort)
		sw.printf("Tx Packets/Bytes: %d/%d\n", fm.TxPackets, fm.TxBytes)
		sw.printf("Rx Packets/Bytes: %d/%d\n", fm.RxPackets, fm.RxBytes)
		sw.printf("Throughput: %gkb/s\n", fm.ThroughputKbps)
		sw.printf("Delay sum: %gms\n", fm.DelaySumMs)
		sw.printf("Mean delay: %gms\n", fm.MeanDelayMs)
		sw.printf("Jitter sum: %gms\n", fm.JitterSumMs)
		sw.printf("Mean jitter: %gms\n", fm.MeanJitterMs)
		sw.printf("Lost Packets: %d\n", fm.LostPackets)
		sw.printf("Packet loss: %g%%\n", fm.LossPercent)
		sw.printf("------------------------------------------------\n")
	}
	return sw.err
}

// Point is one (x, y) sample of a Dataset
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Dataset is a labeled 2-D series with fixed axis ranges, ready for plotting
type Dataset struct {
	Name   string
	Title  string
	XLabel string
	YLabel string
	XRange [2]float64
	YRange [2]float64
	Points []Point
}

// axis ranges of the two datasets
const (
	DelayRangeMax      = 500.0
	ThroughputRangeMax = 2500.0
)

// Datasets builds the delay-by-flow and throughput-by-flow series.  The x axis
// runs over [1, 2*ueCount].  Undefined values stay NaN.
func Datasets(metrics []FlowMetrics, ueCount int) (delay, throughput Dataset) {
	xRange := [2]float64{1, float64(2 * ueCount)}
	delay = Dataset{
		Name:   "delay",
		Title:  "Mean delay by flow",
		XLabel: "Flow ID",
		YLabel: "Delay (ms)",
		XRange: xRange,
		YRange: [2]float64{0, DelayRangeMax},
		Points: make([]Point, 0, len(metrics)),
	}
	throughput = Dataset{
		Name:   "throughput",
		Title:  "Throughput by flow",
		XLabel: "Flow ID",
		YLabel: "Throughput (kb/s)",
		XRange: xRange,
		YRange: [2]float64{0, ThroughputRangeMax},
		Points: make([]Point, 0, len(metrics)),
	}
	for _, fm := range metrics {
		delay.Points = append(delay.Points, Point{X: float64(fm.FlowID), Y: fm.MeanDelayMs})
		throughput.Points = append(throughput.Points, Point{X: float64(fm.FlowID), Y: fm.ThroughputKbps})
	}
	return delay, throughput
}

// WriteGnuplot writes the dataset as a self-contained gnuplot script with
// inline data.  When output is not empty the script renders to that png file.
// gnuplot treats NaN samples as missing, so they are written as is.
func (ds *Dataset) WriteGnuplot(w io.Writer, output string) error {
	sw := &stickyWriter{w: w}
	if output != "" {
		sw.printf("set terminal png\n")
		sw.printf("set output %q\n", output)
	}
	sw.printf("set title %q\n", ds.Title)
	sw.printf("set xlabel %q\n", ds.XLabel)
	sw.printf("set ylabel %q\n", ds.YLabel)
	sw.printf("set xrange [%g:%g]\n", ds.XRange[0], ds.XRange[1])
	sw.printf("set yrange [%g:%g]\n", ds.YRange[0], ds.YRange[1])
	sw.printf("plot \"-\" title %q with linespoints\n", ds.Name)
	for _, pt := range ds.Points {
		sw.printf("%g %g\n", pt.X, pt.Y)
	}
	sw.printf("e\n")
	return sw.err
}

// WriteGnuplotFile writes the gnuplot script to filename
func (ds *Dataset) WriteGnuplotFile(filename, output string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := ds.WriteGnuplot(f, output); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var csvHeader = []string{
	"flow_id", "src_addr", "dst_addr", "src_port", "dst_port", "protocol",
	"tx_packets", "tx_bytes", "rx_packets", "rx_bytes",
	"throughput_kbps", "delay_sum_ms", "mean_delay_ms", "jitter_sum_ms", "mean_jitter_ms",
	"lost_packets", "loss_percent",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes one row per flow after a header row
func WriteCSV(w io.Writer, metrics []FlowMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, fm := range metrics {
		row := []string{
			strconv.FormatUint(uint64(fm.FlowID), 10),
			fm.Tuple.SrcAddr.String(),
			fm.Tuple.DstAddr.String(),
			strconv.Itoa(int(fm.Tuple.SrcPort)),
			strconv.Itoa(int(fm.Tuple.DstPort)),
			fm.Tuple.Protocol.String(),
			strconv.FormatUint(fm.TxPackets, 10),
			strconv.FormatUint(fm.TxBytes, 10),
			strconv.FormatUint(fm.RxPackets, 10),
			strconv.FormatUint(fm.RxBytes, 10),
			formatFloat(fm.ThroughputKbps),
			formatFloat(fm.DelaySumMs),
			formatFloat(fm.MeanDelayMs),
			formatFloat(fm.JitterSumMs),
			formatFloat(fm.MeanJitterMs),
			strconv.FormatInt(fm.LostPackets, 10),
			formatFloat(fm.LossPercent),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the CSV table to filename
func WriteCSVFile(filename string, metrics []FlowMetrics) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, metrics); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Summary aggregates the flows of a run.  Means are taken over the flows whose
// metric is defined; a mean over no flows is NaN.
type Summary struct {
	Flows          int     `json:"flows" yaml:"flows"`
	SilentFlows    int     `json:"silentflows" yaml:"silentflows"` // no packet received
	MeanThroughput float64 `json:"meanthroughputkbps" yaml:"meanthroughputkbps"`
	StdThroughput  float64 `json:"stdthroughputkbps" yaml:"stdthroughputkbps"`
	MeanDelay      float64 `json:"meandelayms" yaml:"meandelayms"`
	MedianDelay    float64 `json:"mediandelayms" yaml:"mediandelayms"`
	MeanJitter     float64 `json:"meanjitterms" yaml:"meanjitterms"`
	TotalTx        uint64  `json:"totaltx" yaml:"totaltx"`
	TotalLost      int64   `json:"totallost" yaml:"totallost"`
	LossPercent    float64 `json:"losspercent" yaml:"losspercent"`
}

// defined keeps the non-NaN values
func defined(values []float64) []float64 {
	rtn := make([]float64, 0, len(values))
	for _, v := range values {
		if !IsUndefined(v) {
			rtn = append(rtn, v)
		}
	}
	return rtn
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Summarize computes the Summary of a set of flow metrics
func Summarize(metrics []FlowMetrics) Summary {
	s := Summary{Flows: len(metrics)}
	throughputs := make([]float64, 0, len(metrics))
	delays := make([]float64, 0, len(metrics))
	jitters := make([]float64, 0, len(metrics))

	for _, fm := range metrics {
		if fm.RxPackets == 0 {
			s.SilentFlows += 1
		}
		throughputs = append(throughputs, fm.ThroughputKbps)
		delays = append(delays, fm.MeanDelayMs)
		jitters = append(jitters, fm.MeanJitterMs)
		s.TotalTx += fm.TxPackets
		s.TotalLost += fm.LostPackets
	}

	throughputs = defined(throughputs)
	delays = defined(delays)
	jitters = defined(jitters)

	s.MeanThroughput = meanOf(throughputs)
	s.StdThroughput = math.NaN()
	if len(throughputs) > 1 {
		s.StdThroughput = stat.StdDev(throughputs, nil)
	}
	s.MeanDelay = meanOf(delays)
	s.MedianDelay = math.NaN()
	if len(delays) > 0 {
		slices.Sort(delays)
		s.MedianDelay = stat.Quantile(0.5, stat.Empirical, delays, nil)
	}
	s.MeanJitter = meanOf(jitters)
	s.LossPercent = math.NaN()
	if s.TotalTx > 0 {
		s.LossPercent = float64(s.TotalLost) / float64(s.TotalTx) * 100
	}
	return s
}

// WriteSummary writes the Summary as a short text block
func WriteSummary(w io.Writer, s Summary) error {
	sw := &stickyWriter{w: w}
	sw.printf("\n*** Summary ***\n")
	sw.printf("Flows: %d (%d without reception)\n", s.Flows, s.SilentFlows)
	sw.printf("Mean throughput: %gkb/s (std %g)\n", s.MeanThroughput, s.StdThroughput)
	sw.printf("Mean delay: %gms (median %g)\n", s.MeanDelay, s.MedianDelay)
	sw.printf("Mean jitter: %gms\n", s.MeanJitter)
	sw.printf("Lost Packets: %d of %d (%g%%)\n", s.TotalLost, s.TotalTx, s.LossPercent)
	return sw.err
}
