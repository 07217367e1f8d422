package ltesim

// routes.go provides shortest path routes through the wired core network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The wired part of the network (remote host, PGW, SGW, MME and the eNB side of
// every S1-U link) is converted into a gonum weighted undirected graph so that
// its built-in path discovery can be used.  Weighting each edge by 1, a shortest
// path minimizes the number of hops.
//
//   The Dijkstra algorithm computes a tree of shortest paths from a named node,
// so to get the path from src to dst we either compute such a tree rooted in src,
// or look it up in the cache of already computed trees.  Failing that we look for
// a known tree rooted in dst, whose path to src is by symmetry the reverse of what
// we want.  The air interface is not part of this graph; it is added around the
// wired path when a packet is sent.

// routeTable owns the graph representation of one Network's core
type routeTable struct {
	connGraph *simple.WeightedUndirectedGraph
	cachedSP  map[EndpointID]path.Shortest
}

func createRouteTable() *routeTable {
	return &routeTable{
		connGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		cachedSP:  make(map[EndpointID]path.Shortest),
	}
}

// addEdge records a wired connection.  Any previously computed trees are
// invalidated.
func (rt *routeTable) addEdge(a, b EndpointID) {
	nodeA, nodeB := simple.Node(a), simple.Node(b)
	if rt.connGraph.Node(int64(a)) == nil {
		rt.connGraph.AddNode(nodeA)
	}
	if rt.connGraph.Node(int64(b)) == nil {
		rt.connGraph.AddNode(nodeB)
	}
	rt.connGraph.SetWeightedEdge(simple.WeightedEdge{F: nodeA, T: nodeB, W: 1.0})
	clear(rt.cachedSP)
}

// getSPTree returns the shortest path tree rooted in 'from', computing and
// caching it if need be
func (rt *routeTable) getSPTree(from EndpointID) path.Shortest {
	spTree, present := rt.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(from), rt.connGraph)
	rt.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts endpoint ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []EndpointID {
	rtn := make([]EndpointID, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, EndpointID(node.ID()))
	}
	return rtn
}

// routeFrom returns the shortest path, as a sequence of endpoint ids including
// both ends, from srcID to dstID
func (rt *routeTable) routeFrom(srcID, dstID EndpointID) ([]EndpointID, error) {
	if srcID == dstID {
		return []EndpointID{srcID}, nil
	}
	if rt.connGraph.Node(int64(srcID)) == nil || rt.connGraph.Node(int64(dstID)) == nil {
		return nil, fmt.Errorf("no wired route between %d and %d: endpoint not in core graph", srcID, dstID)
	}

	var nodeSeq []graph.Node

	if spTree, present := rt.cachedSP[srcID]; present {
		nodeSeq, _ = spTree.To(int64(dstID))
	} else if spTree, present := rt.cachedSP[dstID]; present {
		revSeq, _ := spTree.To(int64(srcID))
		nodeSeq = make([]graph.Node, len(revSeq))
		for idx, node := range revSeq {
			nodeSeq[len(revSeq)-idx-1] = node
		}
	} else {
		nodeSeq, _ = rt.getSPTree(srcID).To(int64(dstID))
	}

	if len(nodeSeq) == 0 {
		return nil, fmt.Errorf("no wired route between %d and %d", srcID, dstID)
	}
	return convertNodeSeq(nodeSeq), nil
}

// ShowPath returns a string that lists the names of the devices on a route
func ShowPath(route []EndpointID, idToName map[EndpointID]string) string {
	names := make([]string, 0, len(route))
	for _, id := range route {
		names = append(names, idToName[id])
	}
	return strings.Join(names, ",")
}
