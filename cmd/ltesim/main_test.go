package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iti/ltesim"
	"github.com/iti/ltesim/internal/logging"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, opts, err := parseArgs(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	def := ltesim.DefaultScenarioConfig()
	if cfg.UEs != def.UEs || cfg.ENBs != def.ENBs || cfg.Variant != def.Variant || cfg.VideoDataSize != def.VideoDataSize {
		t.Fatalf("cfg = %+v", cfg)
	}
	if opts.flowmonOut != "lte-full.flowmon" || opts.delayOut != "lte-full-delay.plt" || opts.render {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestParseArgsFlags(t *testing.T) {
	cfg, _, err := parseArgs([]string{
		"-simTime", "20s", "-useCa=false", "-upBandwidth", "50", "-videoDataSize", "300", "-variant", "background",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.SimTime != 20*time.Second || cfg.UseCa || cfg.UlBandwidth != 50 ||
		cfg.VideoDataSize != 300 || cfg.Variant != ltesim.VariantBackground {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseArgsFlagsOverrideConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "scenario.yaml")
	content := "ues: 6\nenbs: 2\nvariant: full\nsimtime: 30s\n"
	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := parseArgs([]string{"-config", filename, "-ues", "9"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.UEs != 9 {
		t.Fatalf("ues = %d, want the flag's 9", cfg.UEs)
	}
	if cfg.ENBs != 2 || cfg.Variant != ltesim.VariantFull || cfg.SimTime != 30*time.Second {
		t.Fatalf("file values lost: %+v", cfg)
	}
	// neither in the file nor on the command line
	if cfg.DlBandwidth != ltesim.DefaultScenarioConfig().DlBandwidth {
		t.Fatalf("dlbandwidth = %d", cfg.DlBandwidth)
	}
}

func TestParseArgsRejects(t *testing.T) {
	if _, _, err := parseArgs([]string{"-ues", "0", "-variant", "bogus"}, io.Discard); !errors.Is(err, ltesim.ErrConfiguration) {
		t.Fatalf("err = %v, want a configuration error", err)
	}
	_, _, err := parseArgs([]string{"-videoDataSize", "4294967297"}, io.Discard)
	var ce *ltesim.ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "videodatasize" {
		t.Fatalf("oversized videoDataSize: err = %v, want a configuration error", err)
	}
	if cfg, _, err := parseArgs([]string{"-videoDataSize", "4294967295"}, io.Discard); err != nil || cfg.VideoDataSize != math.MaxUint32 {
		t.Fatalf("largest videoDataSize: cfg = %v, err = %v", cfg, err)
	}
	if _, _, err := parseArgs([]string{"-nosuchflag"}, io.Discard); err == nil {
		t.Fatalf("unknown flag accepted")
	}
	if _, _, err := parseArgs([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard); err == nil {
		t.Fatalf("missing config file accepted")
	}
}

func TestRunWritesOutputs(t *testing.T) {
	cfg := ltesim.DefaultScenarioConfig()
	cfg.UEs = 3
	cfg.ENBs = 1
	cfg.SimTime = 4 * time.Second
	cfg.TrafficStart = time.Second
	cfg.StreamUEs = 1
	cfg.VideoDataSize = 50
	cfg.FtpSender = 1
	cfg.FtpReceiver = 2
	cfg.FtpDataSize = 10000

	dir := t.TempDir()
	opts := options{
		flowmonOut:    filepath.Join(dir, "lte-full.flowmon"),
		topoOut:       filepath.Join(dir, "topo.yaml"),
		delayOut:      filepath.Join(dir, "lte-full-delay.plt"),
		throughputOut: filepath.Join(dir, "lte-full-throughput.plt"),
		csvOut:        filepath.Join(dir, "flows.csv"),
		metricsOut:    filepath.Join(dir, "ltesim.prom"),
		sinkTimeout:   time.Second,
	}

	var stdout bytes.Buffer
	if err := run(context.Background(), &cfg, opts, logging.Noop(), &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}

	report := stdout.String()
	for _, want := range []string{"eNode 0 Stats:", "*** Flow monitor statistic ***", "Flow ID: 1", "*** Summary ***"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report lacks %q:\n%s", want, report)
		}
	}
	for _, file := range opts.outputs() {
		info, err := os.Stat(file)
		if err != nil || info.Size() == 0 {
			t.Fatalf("output %s not written: %v", file, err)
		}
	}

	dump, err := ltesim.ReadFlowMonitorDump(opts.flowmonOut)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if len(dump.Flows) == 0 || dump.RunID == "" || dump.ExpName != expName {
		t.Fatalf("dump = %+v", dump)
	}
}

func TestRunRefusesUnwritableOutput(t *testing.T) {
	cfg := ltesim.DefaultScenarioConfig()
	opts := options{csvOut: filepath.Join(t.TempDir(), "missing", "flows.csv"), sinkTimeout: time.Second}
	var stdout bytes.Buffer
	if err := run(context.Background(), &cfg, opts, logging.Noop(), &stdout); err == nil {
		t.Fatalf("run started with an unwritable output")
	}
	if stdout.Len() != 0 {
		t.Fatalf("report written before the output check: %q", stdout.String())
	}
}

func TestCountJoined(t *testing.T) {
	if n := countJoined(nil); n != 0 {
		t.Fatalf("countJoined(nil) = %d", n)
	}
	if n := countJoined(errors.New("one")); n != 1 {
		t.Fatalf("countJoined(single) = %d", n)
	}
	if n := countJoined(errors.Join(errors.New("a"), errors.New("b"))); n != 2 {
		t.Fatalf("countJoined(joined) = %d", n)
	}
}
