package ltesim

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// FlowRecord is one flow of a FlowMonitorDump
type FlowRecord struct {
	FlowID   FlowID          `json:"flowid" yaml:"flowid" xml:"flowId,attr"`
	Tuple    FiveTuple       `json:"tuple" yaml:"tuple" xml:"Ipv4FlowClassifier"`
	Counters RawFlowCounters `json:"counters" yaml:"counters" xml:"Stats"`
}

// FlowMonitorDump gathers the raw counters of a finished run for post-run
// analysis.  It is written to disk as is; nothing in the report is derived from it.
type FlowMonitorDump struct {
	XMLName xml.Name `json:"-" yaml:"-" xml:"FlowMonitor"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname" xml:"expName,attr"`

	// identity of the run that produced the counters
	RunID string `json:"runid" yaml:"runid" xml:"runId,attr"`

	// simulated seconds the run covered
	Duration float64 `json:"duration" yaml:"duration" xml:"duration,attr"`

	Flows []FlowRecord `json:"flows" yaml:"flows" xml:"Flow"`
}

// CreateFlowMonitorDump is a constructor.  It copies out every flow the source
// knows about, ordered by FlowID.  Counters are dumped as observed: a flow the
// source cannot classify keeps a zero five-tuple and is reported in the
// returned error.
func CreateFlowMonitorDump(expName, runID string, duration float64, src CounterSource) (*FlowMonitorDump, error) {
	dump := &FlowMonitorDump{ExpName: expName, RunID: runID, Duration: duration}
	counters := src.RawCounters()

	ids := make([]FlowID, 0, len(counters))
	for id := range counters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	errs := []error{}
	dump.Flows = make([]FlowRecord, 0, len(ids))
	for _, id := range ids {
		tuple, ok := src.ClassifyFlow(id)
		if !ok {
			errs = append(errs, &UnclassifiedFlowError{FlowID: id})
		}
		dump.Flows = append(dump.Flows, FlowRecord{FlowID: id, Tuple: tuple, Counters: counters[id]})
	}
	return dump, errors.Join(errs...)
}

// WriteToFile stores the dump to the file whose name is given.
// Serialization to json, yaml or xml is selected based on the extension of this name.
func (dump *FlowMonitorDump) WriteToFile(filename string) error {
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*dump)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*dump, "", "\t")
	case ".xml", ".XML", ".flowmon":
		bytes, merr = xml.MarshalIndent(*dump, "", "  ")
		if merr == nil {
			bytes = append([]byte(xml.Header), bytes...)
		}
	default:
		return fmt.Errorf("unrecognized extension for flow monitor dump %s", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadFlowMonitorDump deserializes a dump previously written by WriteToFile.
// The format is selected from the extension of filename.
func ReadFlowMonitorDump(filename string) (*FlowMonitorDump, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	dump := new(FlowMonitorDump)

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		err = yaml.Unmarshal(bytes, dump)
	case ".json", ".JSON":
		err = json.Unmarshal(bytes, dump)
	case ".xml", ".XML", ".flowmon":
		err = xml.Unmarshal(bytes, dump)
	default:
		return nil, fmt.Errorf("unrecognized extension for flow monitor dump %s", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("flow monitor dump %s: %w", filename, err)
	}
	return dump, nil
}
