package ltesim

import (
	"testing"
)

// star core: 1 remote - 2 pgw - 3 sgw - {4 mme, 5 enb, 6 enb}
func testRouteTable() *routeTable {
	rt := createRouteTable()
	rt.addEdge(1, 2)
	rt.addEdge(2, 3)
	rt.addEdge(3, 4)
	rt.addEdge(3, 5)
	rt.addEdge(3, 6)
	return rt
}

func sameRoute(a, b []EndpointID) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

func TestRouteFrom(t *testing.T) {
	rt := testRouteTable()

	route, err := rt.routeFrom(1, 5)
	if err != nil {
		t.Fatalf("routeFrom: %v", err)
	}
	if want := []EndpointID{1, 2, 3, 5}; !sameRoute(route, want) {
		t.Fatalf("route 1->5 = %v, want %v", route, want)
	}

	// answered from the tree rooted at 1, reversed
	route, err = rt.routeFrom(6, 1)
	if err != nil {
		t.Fatalf("routeFrom: %v", err)
	}
	if want := []EndpointID{6, 3, 2, 1}; !sameRoute(route, want) {
		t.Fatalf("route 6->1 = %v, want %v", route, want)
	}

	if route, _ := rt.routeFrom(3, 3); !sameRoute(route, []EndpointID{3}) {
		t.Fatalf("route to self = %v", route)
	}
	if _, err := rt.routeFrom(1, 99); err == nil {
		t.Fatalf("route to an unknown node succeeded")
	}
}

func TestAddEdgeInvalidatesCache(t *testing.T) {
	rt := testRouteTable()
	if _, err := rt.routeFrom(5, 6); err != nil {
		t.Fatalf("routeFrom: %v", err)
	}
	if len(rt.cachedSP) == 0 {
		t.Fatalf("no tree cached")
	}
	rt.addEdge(5, 6)
	if len(rt.cachedSP) != 0 {
		t.Fatalf("cache survived a topology change")
	}
	route, _ := rt.routeFrom(5, 6)
	if want := []EndpointID{5, 6}; !sameRoute(route, want) {
		t.Fatalf("route 5->6 = %v, want %v", route, want)
	}
}

func TestShowPath(t *testing.T) {
	names := map[EndpointID]string{1: "remotehost", 2: "pgw", 3: "sgw"}
	if got := ShowPath([]EndpointID{1, 2, 3}, names); got != "remotehost,pgw,sgw" {
		t.Fatalf("ShowPath = %q", got)
	}
}
