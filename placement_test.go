package ltesim

import (
	"errors"
	"math"
	"testing"
)

func TestClusterIndexRoundRobin(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7} {
		for i := 0; i < 50; i++ {
			if got := ClusterIndex(i, k); got != i%k {
				t.Fatalf("ClusterIndex(%d, %d) = %d, want %d", i, k, got, i%k)
			}
			if k > 1 && ClusterIndex(i, k) == ClusterIndex(i+1, k) {
				t.Fatalf("devices %d and %d share cluster with k=%d", i, i+1, k)
			}
		}
	}
}

func TestClusterSizesBalanced(t *testing.T) {
	sizes := ClusterSizes(15, 3)
	want := []int{5, 5, 5}
	for idx := range want {
		if sizes[idx] != want[idx] {
			t.Fatalf("ClusterSizes(15, 3) = %v, want %v", sizes, want)
		}
	}

	sizes = ClusterSizes(16, 3)
	if sizes[0] != 6 || sizes[1] != 5 || sizes[2] != 5 {
		t.Fatalf("ClusterSizes(16, 3) = %v, want [6 5 5]", sizes)
	}
}

func TestClusterCentersAlongX(t *testing.T) {
	centers := ClusterCenters(3, Position{X: 200, Y: 700}, 300)
	want := []Position{{200, 700}, {500, 700}, {800, 700}}
	if len(centers) != len(want) {
		t.Fatalf("got %d centers, want %d", len(centers), len(want))
	}
	for idx := range want {
		if centers[idx] != want[idx] {
			t.Fatalf("center %d = %+v, want %+v", idx, centers[idx], want[idx])
		}
	}
	if got := ClusterCenters(0, Position{}, 300); len(got) != 0 {
		t.Fatalf("ClusterCenters(0) = %v, want empty", got)
	}
}

func TestPlaceDevicesOnCircle(t *testing.T) {
	centers := ClusterCenters(3, Position{X: 200, Y: 700}, 300)
	const radius = 20.0
	placements, err := PlaceDevices(15, centers, radius)
	if err != nil {
		t.Fatalf("PlaceDevices: %v", err)
	}
	if len(placements) != 15 {
		t.Fatalf("got %d placements, want 15", len(placements))
	}

	counts := make([]int, len(centers))
	for i, p := range placements {
		if p.Index != i {
			t.Fatalf("placement %d has index %d", i, p.Index)
		}
		if p.Cluster != i%3 {
			t.Fatalf("placement %d in cluster %d, want %d", i, p.Cluster, i%3)
		}
		counts[p.Cluster] += 1

		d := p.Position.DistanceTo(centers[p.Cluster])
		if math.Abs(d-radius) > 1e-9 {
			t.Fatalf("placement %d at distance %g from its center, want %g", i, d, radius)
		}
		theta := math.Atan2(p.Position.Y-centers[p.Cluster].Y, p.Position.X-centers[p.Cluster].X)
		want := 2 * math.Pi * float64(i) / 15
		if diff := math.Remainder(theta-want, 2*math.Pi); math.Abs(diff) > 1e-9 {
			t.Fatalf("placement %d at angle %g, want %g", i, theta, want)
		}
	}
	for idx, c := range counts {
		if c != 5 {
			t.Fatalf("cluster %d holds %d devices, want 5", idx, c)
		}
	}
}

func TestPlaceDevicesDeterministic(t *testing.T) {
	centers := ClusterCenters(2, Position{X: 0, Y: 0}, 100)
	first, err := PlaceDevices(9, centers, 15)
	if err != nil {
		t.Fatalf("PlaceDevices: %v", err)
	}
	second, _ := PlaceDevices(9, centers, 15)
	for idx := range first {
		if first[idx] != second[idx] {
			t.Fatalf("placement %d differs between calls: %+v vs %+v", idx, first[idx], second[idx])
		}
	}
}

func TestPlaceDevicesEdgeCases(t *testing.T) {
	centers := []Position{{X: 1, Y: 1}}

	placements, err := PlaceDevices(0, centers, 20)
	if err != nil {
		t.Fatalf("PlaceDevices(0): %v", err)
	}
	if len(placements) != 0 {
		t.Fatalf("PlaceDevices(0) = %v, want empty", placements)
	}

	cases := []struct {
		name    string
		n       int
		centers []Position
		radius  float64
	}{
		{"no clusters", 5, nil, 20},
		{"negative count", -1, centers, 20},
		{"zero radius", 5, centers, 0},
		{"NaN radius", 5, centers, math.NaN()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PlaceDevices(tc.n, tc.centers, tc.radius)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want a configuration error", err)
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %T, want *ConfigurationError", err)
			}
		})
	}
}

func TestClusterIndexWithoutClusters(t *testing.T) {
	for _, k := range []int{0, -2} {
		if got := ClusterIndex(1, k); got != -1 {
			t.Fatalf("ClusterIndex(1, %d) = %d, want -1", k, got)
		}
	}
	if sizes := ClusterSizes(5, 0); len(sizes) != 0 {
		t.Fatalf("ClusterSizes(5, 0) = %v", sizes)
	}
}
