package ltesim

// config.go holds the ScenarioConfig record, its defaults, validation,
// and (de)serialization to yaml or json.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"
)

// Variant selects which traffic families a scenario runs
type Variant string

const (
	// VariantStreamFTP runs the streaming flows and the UE-to-UE bulk transfer
	VariantStreamFTP Variant = "stream-ftp"

	// VariantBackground runs the streaming flows and background traffic
	// from every UE not receiving a stream
	VariantBackground Variant = "background"

	// VariantFull runs all three traffic families
	VariantFull Variant = "full"
)

// Variants lists the recognized scenario variants
var Variants = []Variant{VariantStreamFTP, VariantBackground, VariantFull}

func (v Variant) valid() bool {
	for _, known := range Variants {
		if v == known {
			return true
		}
	}
	return false
}

// Rect is an axis-aligned rectangle in metres
type Rect struct {
	MinX float64 `json:"minx" yaml:"minx"`
	MaxX float64 `json:"maxx" yaml:"maxx"`
	MinY float64 `json:"miny" yaml:"miny"`
	MaxY float64 `json:"maxy" yaml:"maxy"`
}

// Contains reports whether p lies inside (or on the border of) the rectangle
func (r Rect) Contains(p Position) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

func (r Rect) String() string {
	return fmt.Sprintf("%g|%g|%g|%g", r.MinX, r.MaxX, r.MinY, r.MaxY)
}

// ScenarioConfig holds every tunable parameter of an experiment.
// It is built once at startup and treated as read-only afterwards.
type ScenarioConfig struct {
	// number of mobile devices and of base stations
	UEs  int `json:"ues" yaml:"ues"`
	ENBs int `json:"enbs" yaml:"enbs"`

	// eNB bandwidths, in resource blocks
	DlBandwidth int `json:"dlbandwidth" yaml:"dlbandwidth"`
	UlBandwidth int `json:"ulbandwidth" yaml:"ulbandwidth"`

	// UE transmission power (dBm)
	TxPower float64 `json:"txpower" yaml:"txpower"`

	// eNB transmission power (dBm)
	EnbTxPower float64 `json:"enbtxpower" yaml:"enbtxpower"`

	VideoPacketSize int    `json:"videopacketsize" yaml:"videopacketsize"`
	VideoDataSize   uint32 `json:"videodatasize" yaml:"videodatasize"` // max packets per stream
	FtpPacketSize   int    `json:"ftppacketsize" yaml:"ftppacketsize"`
	FtpDataSize     uint64 `json:"ftpdatasize" yaml:"ftpdatasize"` // bytes

	SimTime  time.Duration `json:"simtime" yaml:"simtime"`
	Interval time.Duration `json:"interval" yaml:"interval"`

	// start time shared by every traffic generator and sink
	TrafficStart time.Duration `json:"trafficstart" yaml:"trafficstart"`

	WalkSpeed float64 `json:"walkspeed" yaml:"walkspeed"` // m/s
	Distance  float64 `json:"distance" yaml:"distance"`   // between eNBs, m

	UseCa bool `json:"useca" yaml:"useca"`

	// radius of the circle UEs are placed on around their cluster center
	ClusterRadius float64 `json:"clusterradius" yaml:"clusterradius"`

	// position of the first eNB; the others follow along x at Distance spacing
	Origin Position `json:"origin" yaml:"origin"`

	// rectangle bounding the random walk of every UE
	Bounds Rect `json:"bounds" yaml:"bounds"`

	// UEs 0..StreamUEs-1 receive a video stream from the remote host
	StreamUEs int `json:"streamues" yaml:"streamues"`

	// UE indices of the bulk-transfer sender and receiver
	FtpSender   int `json:"ftpsender" yaml:"ftpsender"`
	FtpReceiver int `json:"ftpreceiver" yaml:"ftpreceiver"`

	Variant Variant `json:"variant" yaml:"variant"`

	// prefix of the names given to random number streams.  Streams are
	// handed out in creation order, so the name labels a stream but does not
	// select its draws
	Seed string `json:"seed" yaml:"seed"`
}

// DefaultScenarioConfig returns the parameters of the reference experiment:
// 15 UEs around 3 eNBs, three video streams and one UE-to-UE bulk transfer
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		UEs:             15,
		ENBs:            3,
		DlBandwidth:     75,
		UlBandwidth:     75,
		TxPower:         10,
		EnbTxPower:      30,
		VideoPacketSize: 1500,
		VideoDataSize:   1000000,
		FtpPacketSize:   200,
		FtpDataSize:     10000000,
		SimTime:         60 * time.Second,
		Interval:        20 * time.Millisecond,
		TrafficStart:    2 * time.Second,
		WalkSpeed:       2.0,
		Distance:        300.0,
		UseCa:           true,
		ClusterRadius:   20.0,
		Origin:          Position{X: 200, Y: 700},
		Bounds:          Rect{MinX: 150, MaxX: 850, MinY: 150, MaxY: 850},
		StreamUEs:       3,
		FtpSender:       4,
		FtpReceiver:     8,
		Variant:         VariantStreamFTP,
		Seed:            "ltesim",
	}
}

// ComponentCarriers is the number of carriers each eNB aggregates
func (cfg *ScenarioConfig) ComponentCarriers() int {
	if cfg.UseCa {
		return 2
	}
	return 1
}

// Validate checks the invariants every scenario must satisfy: counts and
// sizes positive, durations positive, the traffic window inside the run.
// All violations found are returned together.
func (cfg *ScenarioConfig) Validate() error {
	errs := []error{}
	positiveInt := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, configErr(field, "must be positive, got %d", v))
		}
	}
	positiveFloat := func(field string, v float64) {
		if !(v > 0) {
			errs = append(errs, configErr(field, "must be positive, got %g", v))
		}
	}

	positiveInt("ues", cfg.UEs)
	positiveInt("enbs", cfg.ENBs)
	positiveInt("dlbandwidth", cfg.DlBandwidth)
	positiveInt("ulbandwidth", cfg.UlBandwidth)
	positiveInt("videopacketsize", cfg.VideoPacketSize)
	positiveInt("ftppacketsize", cfg.FtpPacketSize)
	positiveFloat("distance", cfg.Distance)
	positiveFloat("clusterradius", cfg.ClusterRadius)

	if cfg.VideoDataSize == 0 {
		errs = append(errs, configErr("videodatasize", "must be positive"))
	}
	if cfg.FtpDataSize == 0 {
		errs = append(errs, configErr("ftpdatasize", "must be positive"))
	}
	if cfg.SimTime <= 0 {
		errs = append(errs, configErr("simtime", "must be positive, got %s", cfg.SimTime))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, configErr("interval", "must be positive, got %s", cfg.Interval))
	}
	if cfg.WalkSpeed < 0 {
		errs = append(errs, configErr("walkspeed", "must not be negative, got %g", cfg.WalkSpeed))
	}
	if cfg.TrafficStart < 0 || cfg.TrafficStart >= cfg.SimTime {
		errs = append(errs, configErr("trafficstart", "%s outside [0, %s)", cfg.TrafficStart, cfg.SimTime))
	}
	if cfg.StreamUEs < 0 {
		errs = append(errs, configErr("streamues", "must not be negative, got %d", cfg.StreamUEs))
	} else if cfg.UEs > 0 && cfg.StreamUEs > cfg.UEs {
		errs = append(errs, configErr("streamues", "%d streams for only %d UEs", cfg.StreamUEs, cfg.UEs))
	}

	// the traffic plan indexes UEs; reject bad indices before any node is built
	if cfg.UEs > 0 && (cfg.Variant == VariantStreamFTP || cfg.Variant == VariantFull) {
		ueIndex := func(field string, idx int) {
			if idx < 0 || idx >= cfg.UEs {
				errs = append(errs, configErr(field, "UE index %d out of range [0,%d)", idx, cfg.UEs))
			}
		}
		ueIndex("ftpsender", cfg.FtpSender)
		ueIndex("ftpreceiver", cfg.FtpReceiver)
		if cfg.FtpSender == cfg.FtpReceiver {
			errs = append(errs, configErr("ftpreceiver", "same UE %d as the sender", cfg.FtpReceiver))
		}
	}
	if !(cfg.Bounds.MaxX > cfg.Bounds.MinX) || !(cfg.Bounds.MaxY > cfg.Bounds.MinY) {
		errs = append(errs, configErr("bounds", "empty rectangle %s", cfg.Bounds))
	}
	if !cfg.Variant.valid() {
		errs = append(errs, configErr("variant", "unknown variant %q", cfg.Variant))
	}
	return errors.Join(errs...)
}

// WriteToFile stores the ScenarioConfig to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *ScenarioConfig) WriteToFile(filename string) error {
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*cfg)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*cfg, "", "\t")
	default:
		return fmt.Errorf("unrecognized extension for scenario file %s", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadScenarioConfig deserializes a byte slice holding a representation of a ScenarioConfig.
// If the input argument dict is empty, the file whose name is given is read
// to acquire the bytes.  Fields absent from the input keep their default values.
func ReadScenarioConfig(filename string, useYAML bool, dict []byte) (*ScenarioConfig, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultScenarioConfig()
	if useYAML {
		err = yaml.Unmarshal(dict, &cfg)
	} else {
		err = json.Unmarshal(dict, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("scenario file %s: %w", filename, err)
	}

	return &cfg, nil
}
