package ltesim

// placement.go positions mobile devices in clusters around the base stations.
// Placement is a pure function of (device count, cluster centers, radius), so
// an experiment can be repeated exactly.

import (
	"math"
)

// Position is a point in the plane, in metres.  Every node sits at z = 0.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DistanceTo returns the straight-line distance between two positions
func (p Position) DistanceTo(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// DevicePlacement binds a device index to its cluster and initial position
type DevicePlacement struct {
	Index    int      `json:"index" yaml:"index"`
	Cluster  int      `json:"cluster" yaml:"cluster"`
	Position Position `json:"position" yaml:"position"`
}

// ClusterCenters returns k centers laid out along the x axis,
// center i at origin + i*spacing.
func ClusterCenters(k int, origin Position, spacing float64) []Position {
	if k <= 0 {
		return []Position{}
	}
	centers := make([]Position, k)
	for idx := range centers {
		centers[idx] = Position{X: origin.X + float64(idx)*spacing, Y: origin.Y}
	}
	return centers
}

// ClusterIndex assigns device i to one of k clusters, round-robin.
// Consecutive device indices land in different clusters.  There is no
// cluster to assign to when k <= 0, and -1 is returned.
func ClusterIndex(i, k int) int {
	if k <= 0 {
		return -1
	}
	return i % k
}

// ClusterSizes counts how many of n devices ClusterIndex places in each of k clusters
func ClusterSizes(n, k int) []int {
	if k <= 0 {
		return []int{}
	}
	sizes := make([]int, k)
	for i := 0; i < n; i++ {
		sizes[ClusterIndex(i, k)] += 1
	}
	return sizes
}

// PlaceDevices computes the initial positions of n devices.  Device i is put on
// the circle of the given radius around centers[i mod K], at angle 2*pi*i/n.
// No centers (K = 0) is a configuration error; n = 0 gives an empty placement.
func PlaceDevices(n int, centers []Position, radius float64) ([]DevicePlacement, error) {
	if len(centers) == 0 {
		return nil, configErr("clusters", "cluster count must be positive")
	}
	if n < 0 {
		return nil, configErr("ues", "device count must not be negative, got %d", n)
	}
	if !(radius > 0) {
		return nil, configErr("clusterradius", "must be positive, got %g", radius)
	}

	k := len(centers)
	placements := make([]DevicePlacement, n)
	for i := 0; i < n; i++ {
		cluster := ClusterIndex(i, k)
		theta := 2 * math.Pi * float64(i) / float64(n)
		center := centers[cluster]
		placements[i] = DevicePlacement{
			Index:   i,
			Cluster: cluster,
			Position: Position{
				X: center.X + radius*math.Cos(theta),
				Y: center.Y + radius*math.Sin(theta),
			},
		}
	}
	return placements, nil
}
