package ltesim

// runner.go defines the boundary to the network simulator and the pipeline
// that drives it: placement, topology, traffic plan, run, reduction.

import (
	"fmt"
	"time"
)

// Simulator is the capability the experiment needs from a network simulator:
// create addressable endpoints, attach scheduled traffic, run for a bounded
// simulated duration, and afterwards report per-flow raw counters.
type Simulator interface {
	// CreateCoreNetwork builds the wired core and returns its nodes by name
	CreateCoreNetwork() (CoreNodes, error)

	// CreateEndpoints creates one node of the role per position
	CreateEndpoints(role Role, positions []Position) ([]EndpointHandle, error)

	AttachTrafficGenerator(flow TrafficFlow) error

	// RunFor blocks until the simulated duration has elapsed
	RunFor(d time.Duration) error

	CounterSource
}

var _ Simulator = (*Network)(nil)

// Experiment is one scenario built on a Simulator, ready to run
type Experiment struct {
	Cfg        *ScenarioConfig
	Core       CoreNodes
	Centers    []Position
	Placements []DevicePlacement
	ENBs       []EndpointHandle
	UEs        []EndpointHandle
	Plan       TrafficPlan
	Sim        Simulator
}

// BuildExperiment validates the configuration, places the UEs in one cluster
// per eNB, builds the topology on the simulator and assembles the traffic plan.
// Nothing is attached to the simulator until Run.
func BuildExperiment(cfg *ScenarioConfig, sim Simulator) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// the eNBs are the cluster centers, so the cluster count tracks the eNB count
	centers := ClusterCenters(cfg.ENBs, cfg.Origin, cfg.Distance)
	placements, err := PlaceDevices(cfg.UEs, centers, cfg.ClusterRadius)
	if err != nil {
		return nil, err
	}

	core, err := sim.CreateCoreNetwork()
	if err != nil {
		return nil, fmt.Errorf("create core network: %w", err)
	}
	enbs, err := sim.CreateEndpoints(RoleENodeB, centers)
	if err != nil {
		return nil, fmt.Errorf("create eNodeBs: %w", err)
	}

	positions := make([]Position, len(placements))
	for idx, placement := range placements {
		positions[idx] = placement.Position
	}
	ues, err := sim.CreateEndpoints(RoleUE, positions)
	if err != nil {
		return nil, fmt.Errorf("create UEs: %w", err)
	}

	plan, err := BuildTrafficPlan(cfg, ues, core.Remote)
	if err != nil {
		return nil, err
	}

	return &Experiment{
		Cfg:        cfg,
		Core:       core,
		Centers:    centers,
		Placements: placements,
		ENBs:       enbs,
		UEs:        ues,
		Plan:       plan,
		Sim:        sim,
	}, nil
}

// Run attaches every flow of the plan, runs the simulator for the plan's
// duration and reduces the counters.  Flows failing the integrity check are
// reported in the returned error; the metrics of the others are still returned.
func (exp *Experiment) Run() ([]FlowMetrics, error) {
	for _, flow := range exp.Plan.Flows {
		if err := exp.Sim.AttachTrafficGenerator(flow); err != nil {
			return nil, fmt.Errorf("attach %s: %w", flow.Name, err)
		}
	}
	if err := exp.Sim.RunFor(exp.Plan.Duration); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	return ReduceAll(exp.Sim)
}
