package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iti/ltesim"
	"github.com/iti/ltesim/internal/logging"
	"github.com/iti/ltesim/internal/observability"
	"github.com/iti/ltesim/internal/plot"
	"github.com/iti/ltesim/internal/publish"
	"github.com/iti/ltesim/internal/store"
)

const expName = "lte-full"

// options are the command line settings that are not scenario parameters
type options struct {
	configFile    string
	flowmonOut    string
	topoOut       string
	delayOut      string
	throughputOut string
	render        bool
	csvOut        string
	metricsOut    string
	amqpURL       string
	amqpExchange  string
	mysqlDSN      string
	sinkTimeout   time.Duration
}

func (opts *options) outputs() []string {
	return []string{opts.flowmonOut, opts.topoOut, opts.delayOut, opts.throughputOut, opts.csvOut, opts.metricsOut}
}

func main() {
	cfg, opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	if err := run(context.Background(), cfg, opts, log, os.Stdout); err != nil {
		log.Error(context.Background(), "run failed", logging.Err(err))
		os.Exit(1)
	}
}

// parseArgs builds the scenario from, in increasing precedence, the defaults,
// the -config file and the flags actually given on the command line.
func parseArgs(args []string, errOut io.Writer) (*ltesim.ScenarioConfig, options, error) {
	fs := flag.NewFlagSet("ltesim", flag.ContinueOnError)
	fs.SetOutput(errOut)

	fc := ltesim.DefaultScenarioConfig()
	videoDataSize := uint64(fc.VideoDataSize)
	variant := string(fc.Variant)

	fs.DurationVar(&fc.SimTime, "simTime", fc.SimTime, "total duration of the simulation")
	fs.Float64Var(&fc.Distance, "distance", fc.Distance, "distance between eNBs (m)")
	fs.BoolVar(&fc.UseCa, "useCa", fc.UseCa, "whether to use carrier aggregation")
	fs.DurationVar(&fc.Interval, "interval", fc.Interval, "inter packet interval of the video streams")
	fs.IntVar(&fc.DlBandwidth, "dlBandwidth", fc.DlBandwidth, "downlink bandwidth of the eNBs, in resource blocks")
	fs.IntVar(&fc.UlBandwidth, "upBandwidth", fc.UlBandwidth, "uplink bandwidth of the eNBs, in resource blocks")
	fs.Float64Var(&fc.TxPower, "txPower", fc.TxPower, "UE transmission power (dBm)")
	fs.IntVar(&fc.FtpPacketSize, "ftpPacketSize", fc.FtpPacketSize, "segment size of the bulk transfer (bytes)")
	fs.Uint64Var(&fc.FtpDataSize, "ftpDataSize", fc.FtpDataSize, "volume of the bulk transfer (bytes)")
	fs.IntVar(&fc.VideoPacketSize, "videoPacketSize", fc.VideoPacketSize, "packet size of the video streams (bytes)")
	fs.Uint64Var(&videoDataSize, "videoDataSize", videoDataSize, "maximum number of packets per video stream")
	fs.Float64Var(&fc.WalkSpeed, "walkSpeed", fc.WalkSpeed, "speed of the UE random walk (m/s)")
	fs.IntVar(&fc.UEs, "ues", fc.UEs, "number of UEs")
	fs.IntVar(&fc.ENBs, "enbs", fc.ENBs, "number of eNBs")
	fs.StringVar(&variant, "variant", variant, "traffic families to run: stream-ftp, background or full")

	opts := options{}
	fs.StringVar(&opts.configFile, "config", "", "yaml or json scenario file")
	fs.StringVar(&opts.flowmonOut, "flowmon-out", expName+".flowmon", "flow counter dump (.flowmon/.xml, .json or .yaml); empty to skip")
	fs.StringVar(&opts.topoOut, "topo-out", "", "topology description (.json or .yaml)")
	fs.StringVar(&opts.delayOut, "delay-out", expName+"-delay.plt", "gnuplot script of the delay dataset")
	fs.StringVar(&opts.throughputOut, "throughput-out", expName+"-throughput.plt", "gnuplot script of the throughput dataset")
	fs.BoolVar(&opts.render, "png", false, "also render each dataset to a png beside its gnuplot script")
	fs.StringVar(&opts.csvOut, "csv-out", "", "per-flow metrics as csv")
	fs.StringVar(&opts.metricsOut, "metrics-out", "", "per-flow metrics in the Prometheus text format")
	fs.StringVar(&opts.amqpURL, "amqp-url", "", "publish the flow metrics to this RabbitMQ server")
	fs.StringVar(&opts.amqpExchange, "amqp-exchange", publish.DefaultExchange, "topic exchange the flow metrics are published to")
	fs.StringVar(&opts.mysqlDSN, "mysql-dsn", "", "store the run and its flow metrics in this MySQL database")
	fs.DurationVar(&opts.sinkTimeout, "sink-timeout", 10*time.Second, "bound on the time spent in the AMQP and MySQL sinks")

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}
	if videoDataSize > math.MaxUint32 {
		return nil, opts, &ltesim.ConfigurationError{
			Field:  "videodatasize",
			Reason: fmt.Sprintf("%d packets exceeds the limit of %d", videoDataSize, uint32(math.MaxUint32)),
		}
	}
	fc.VideoDataSize = uint32(videoDataSize)
	fc.Variant = ltesim.Variant(variant)

	cfg := &fc
	if opts.configFile != "" {
		fileCfg, err := ltesim.ReadScenarioConfig(opts.configFile, ltesim.UseYAML(opts.configFile), nil)
		if err != nil {
			return nil, opts, err
		}

		// flags given explicitly override the file
		fs.Visit(func(f *flag.Flag) {
			if apply, present := flagFields[f.Name]; present {
				apply(fileCfg, &fc)
			}
		})
		cfg = fileCfg
	}
	if err := cfg.Validate(); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

// flagFields copies the field behind each scenario flag from src to dst
var flagFields = map[string]func(dst, src *ltesim.ScenarioConfig){
	"simTime":         func(dst, src *ltesim.ScenarioConfig) { dst.SimTime = src.SimTime },
	"distance":        func(dst, src *ltesim.ScenarioConfig) { dst.Distance = src.Distance },
	"useCa":           func(dst, src *ltesim.ScenarioConfig) { dst.UseCa = src.UseCa },
	"interval":        func(dst, src *ltesim.ScenarioConfig) { dst.Interval = src.Interval },
	"dlBandwidth":     func(dst, src *ltesim.ScenarioConfig) { dst.DlBandwidth = src.DlBandwidth },
	"upBandwidth":     func(dst, src *ltesim.ScenarioConfig) { dst.UlBandwidth = src.UlBandwidth },
	"txPower":         func(dst, src *ltesim.ScenarioConfig) { dst.TxPower = src.TxPower },
	"ftpPacketSize":   func(dst, src *ltesim.ScenarioConfig) { dst.FtpPacketSize = src.FtpPacketSize },
	"ftpDataSize":     func(dst, src *ltesim.ScenarioConfig) { dst.FtpDataSize = src.FtpDataSize },
	"videoPacketSize": func(dst, src *ltesim.ScenarioConfig) { dst.VideoPacketSize = src.VideoPacketSize },
	"videoDataSize":   func(dst, src *ltesim.ScenarioConfig) { dst.VideoDataSize = src.VideoDataSize },
	"walkSpeed":       func(dst, src *ltesim.ScenarioConfig) { dst.WalkSpeed = src.WalkSpeed },
	"ues":             func(dst, src *ltesim.ScenarioConfig) { dst.UEs = src.UEs },
	"enbs":            func(dst, src *ltesim.ScenarioConfig) { dst.ENBs = src.ENBs },
	"variant":         func(dst, src *ltesim.ScenarioConfig) { dst.Variant = src.Variant },
}

// run executes one experiment and exports its results.  A run whose counters
// fail the integrity check still produces every output, then returns the error.
func run(ctx context.Context, cfg *ltesim.ScenarioConfig, opts options, log logging.Logger, stdout io.Writer) (err error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log = log.With(logging.String("variant", string(cfg.Variant)))

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	ctx, span := observability.StartStage(ctx, "experiment",
		attribute.String("run_id", runID),
		attribute.String("variant", string(cfg.Variant)),
		attribute.Int("ues", cfg.UEs),
		attribute.Int("enbs", cfg.ENBs))
	defer func() { observability.EndStage(span, err) }()

	if err := ltesim.CheckOutputFiles(opts.outputs()); err != nil {
		return err
	}

	var db *store.Store
	if opts.mysqlDSN != "" {
		db, err = openStore(ctx, cfg, opts, runID)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	_, buildSpan := observability.StartStage(ctx, "build")
	network := ltesim.CreateNetwork(cfg, log)
	exp, err := ltesim.BuildExperiment(cfg, network)
	observability.EndStage(buildSpan, err)
	if err != nil {
		return err
	}
	log.Info(ctx, "experiment built",
		logging.Int("ues", len(exp.UEs)),
		logging.Int("enbs", len(exp.ENBs)),
		logging.Int("flows", len(exp.Plan.Flows)))

	_, simSpan := observability.StartStage(ctx, "simulate", attribute.Float64("sim_seconds", cfg.SimTime.Seconds()))
	started := time.Now()
	metrics, runErr := exp.Run()
	observability.EndStage(simSpan, runErr)
	if runErr != nil && !errors.Is(runErr, ltesim.ErrDataIntegrity) {
		finishStore(ctx, db, runID, runErr, log)
		return runErr
	}
	integrityErrs := countJoined(runErr)
	log.Info(ctx, "simulation finished",
		logging.Float("wall_seconds", time.Since(started).Seconds()),
		logging.Int("flows", len(metrics)),
		logging.Int("integrity_errors", integrityErrs))

	_, reportSpan := observability.StartStage(ctx, "report")
	err = writeReport(stdout, cfg, metrics)
	observability.EndStage(reportSpan, err)
	if err != nil {
		return err
	}

	_, exportSpan := observability.StartStage(ctx, "export")
	err = exportFiles(ctx, cfg, opts, runID, network, metrics, integrityErrs, log)
	observability.EndStage(exportSpan, err)
	if err != nil {
		return err
	}

	sinkCtx, cancel := context.WithTimeout(ctx, opts.sinkTimeout)
	defer cancel()
	_, sinkSpan := observability.StartStage(sinkCtx, "sinks")
	err = errors.Join(
		publishMetrics(sinkCtx, opts, runID, cfg.Variant, metrics, log),
		storeMetrics(sinkCtx, db, runID, metrics),
	)
	observability.EndStage(sinkSpan, err)
	finishStore(ctx, db, runID, errors.Join(runErr, err), log)
	if err != nil {
		return err
	}

	return runErr
}

func writeReport(w io.Writer, cfg *ltesim.ScenarioConfig, metrics []ltesim.FlowMetrics) error {
	if err := ltesim.WriteEnbStats(w, ltesim.ScenarioEnbStats(cfg)); err != nil {
		return err
	}
	if err := ltesim.WriteText(w, metrics); err != nil {
		return err
	}
	return ltesim.WriteSummary(w, ltesim.Summarize(metrics))
}

func exportFiles(ctx context.Context, cfg *ltesim.ScenarioConfig, opts options, runID string,
	network *ltesim.Network, metrics []ltesim.FlowMetrics, integrityErrs int, log logging.Logger) error {

	delay, throughput := ltesim.Datasets(metrics, cfg.UEs)
	for _, out := range []struct {
		ds   *ltesim.Dataset
		file string
	}{{&delay, opts.delayOut}, {&throughput, opts.throughputOut}} {
		if out.file == "" {
			continue
		}
		png := strings.TrimSuffix(out.file, filepath.Ext(out.file)) + ".png"
		if err := out.ds.WriteGnuplotFile(out.file, png); err != nil {
			return err
		}
		if opts.render {
			if err := plot.Render(out.ds, png); err != nil {
				return err
			}
		}
	}

	if opts.flowmonOut != "" {
		dump, err := ltesim.CreateFlowMonitorDump(expName, runID, cfg.SimTime.Seconds(), network)
		if err != nil {
			log.Warn(ctx, "flow counters without a five-tuple", logging.Err(err))
		}
		if err := dump.WriteToFile(opts.flowmonOut); err != nil {
			return err
		}
	}
	if opts.topoOut != "" {
		if err := network.TopoCfg(expName).WriteToFile(opts.topoOut); err != nil {
			return err
		}
	}
	if opts.csvOut != "" {
		if err := ltesim.WriteCSVFile(opts.csvOut, metrics); err != nil {
			return err
		}
	}
	if opts.metricsOut != "" {
		collector, err := observability.NewFlowCollector(nil)
		if err != nil {
			return err
		}
		collector.Observe(metrics)
		collector.RecordIntegrityErrors(integrityErrs)
		if err := collector.WriteTextfile(opts.metricsOut); err != nil {
			return err
		}
	}
	return nil
}

func publishMetrics(ctx context.Context, opts options, runID string, variant ltesim.Variant,
	metrics []ltesim.FlowMetrics, log logging.Logger) error {
	if opts.amqpURL == "" {
		return nil
	}
	pub, err := publish.NewPublisher(opts.amqpURL, opts.amqpExchange)
	if err != nil {
		return err
	}
	defer pub.Close()
	if err := pub.PublishRun(runID, variant, metrics); err != nil {
		return err
	}
	log.Info(ctx, "flow metrics published",
		logging.String("exchange", opts.amqpExchange),
		logging.String("routing_key", publish.RoutingKey(variant)),
		logging.Int("messages", len(metrics)))
	return nil
}

func openStore(ctx context.Context, cfg *ltesim.ScenarioConfig, opts options, runID string) (*store.Store, error) {
	db, err := store.New(opts.mysqlDSN)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opts.sinkTimeout)
	defer cancel()
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	err = db.CreateRun(ctx, store.Run{
		ID:         runID,
		Variant:    string(cfg.Variant),
		Seed:       cfg.Seed,
		UEs:        cfg.UEs,
		ENBs:       cfg.ENBs,
		SimSeconds: cfg.SimTime.Seconds(),
		Status:     store.StatusRunning,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func storeMetrics(ctx context.Context, db *store.Store, runID string, metrics []ltesim.FlowMetrics) error {
	if db == nil {
		return nil
	}
	return db.InsertFlowMetrics(ctx, runID, metrics)
}

func finishStore(ctx context.Context, db *store.Store, runID string, runErr error, log logging.Logger) {
	if db == nil {
		return
	}
	status := store.StatusCompleted
	if runErr != nil {
		status = store.StatusFailed
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := db.FinishRun(ctx, runID, status, runErr); err != nil {
		log.Warn(ctx, "cannot record run status", logging.Err(err))
	}
}

// countJoined is the number of errors joined into err
func countJoined(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
