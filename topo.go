package ltesim

// topo.go holds the serializable description of a Network's topology: its
// nodes (with roles, addresses and initial positions) and its wired links.
// The description is written for post-run inspection and can be read back.

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NodeDesc describes one node of the topology
type NodeDesc struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`

	// empty for nodes without an IP stack
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// only for eNBs and UEs
	Position *Position `json:"position,omitempty" yaml:"position,omitempty"`
}

// LinkDesc describes one duplex wired link
type LinkDesc struct {
	Ends      [2]string `json:"ends" yaml:"ends"`
	Bandwidth float64   `json:"bandwidth" yaml:"bandwidth"` // bit/s
	Latency   float64   `json:"latency" yaml:"latency"`     // s
	MTU       int       `json:"mtu" yaml:"mtu"`
}

// RadioDesc describes the air interface shared by every eNB
type RadioDesc struct {
	DlBandwidth int     `json:"dlbandwidth" yaml:"dlbandwidth"`
	UlBandwidth int     `json:"ulbandwidth" yaml:"ulbandwidth"`
	Carriers    int     `json:"carriers" yaml:"carriers"`
	UeTxPower   float64 `json:"uetxpower" yaml:"uetxpower"`
	EnbTxPower  float64 `json:"enbtxpower" yaml:"enbtxpower"`
}

// TopoCfg contains all of the nodes and links of a Network
type TopoCfg struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
	Radio RadioDesc  `json:"radio" yaml:"radio"`
	Bound Rect       `json:"bound" yaml:"bound"`
}

// TopoCfg describes the Network as built so far, nodes in creation order
func (n *Network) TopoCfg(name string) *TopoCfg {
	tc := &TopoCfg{Name: name, Nodes: []NodeDesc{}, Links: []LinkDesc{}, Bound: n.cfg.Bounds}
	tc.Radio = RadioDesc{
		DlBandwidth: n.cfg.DlBandwidth,
		UlBandwidth: n.cfg.UlBandwidth,
		Carriers:    n.cfg.ComponentCarriers(),
		UeTxPower:   n.cfg.TxPower,
		EnbTxPower:  n.cfg.EnbTxPower,
	}

	positions := make(map[EndpointID]Position)
	for _, enb := range n.enbs {
		positions[enb.handle.ID] = enb.pos
	}
	for _, ue := range n.ues {
		positions[ue.handle.ID] = ue.walk.start
	}

	for id := EndpointID(1); id <= n.nxtID; id++ {
		handle := n.handles[id]
		nd := NodeDesc{Name: handle.Name, Role: handle.Role.String()}
		if handle.Addr.IsValid() {
			nd.Addr = handle.Addr.String()
		}
		if pos, present := positions[id]; present {
			nd.Position = &pos
		}
		tc.Nodes = append(tc.Nodes, nd)
	}

	// each duplex link is stored twice; report it once, from its lower id
	keys := make([]linkKey, 0, len(n.links))
	for key := range n.links {
		if key.from < key.to {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b linkKey) int {
		if a.from != b.from {
			return cmp.Compare(a.from, b.from)
		}
		return cmp.Compare(a.to, b.to)
	})
	for _, key := range keys {
		link := n.links[key]
		tc.Links = append(tc.Links, LinkDesc{
			Ends:      [2]string{n.handles[key.from].Name, n.handles[key.to].Name},
			Bandwidth: link.bndwdth,
			Latency:   link.latency,
			MTU:       linkMTU,
		})
	}
	return tc
}

// WriteToFile serializes the TopoCfg and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (tc *TopoCfg) WriteToFile(filename string) error {
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*tc)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*tc, "", "\t")
	default:
		return fmt.Errorf("unrecognized extension for topology file %s", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadTopoCfg deserializes a slice of bytes into a TopoCfg.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Error returned if
// any part of the process generates the error.
func ReadTopoCfg(topoFileName string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		dict, err = os.ReadFile(topoFileName)
		if err != nil {
			return nil, fmt.Errorf("topology %s cannot be read: %w", topoFileName, err)
		}
	}

	example := TopoCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}
