package ltesim

// net.go contains the Network, the discrete-event simulation of an LTE/EPC
// network that stands behind the Simulator interface: the nodes, the wired
// links between them, and the walk of each packet from its source to its
// destination.

import (
	"context"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"

	"github.com/iti/ltesim/internal/logging"
)

// parameters of the wired links
const (
	internetBndwdth = 100e9 // remote host <-> PGW, bit/s
	internetLatency = 0.010 // s
	coreBndwdth     = 10e9  // S1-U, S5 and S11 links
	coreLatency     = 0.0
	linkMTU         = 1500
)

// header bytes added to a payload on the wire
const (
	ipHeader  = 20
	udpHeader = 8
	tcpHeader = 20
)

// first ephemeral port handed to a generator on each host
const firstEphemeralPort uint16 = 49153

type linkKey struct {
	from, to EndpointID
}

// wiredLink is one direction of a point-to-point link.  Packets are serialized
// in FIFO order; a packet waits while the link is busy with earlier ones.
type wiredLink struct {
	bndwdth   float64 // bit/s
	latency   float64 // s
	busyUntil float64
}

// transit returns the time at which a packet of the given size handed to
// the link at time now arrives at the far end
func (wl *wiredLink) transit(now float64, bytes int) float64 {
	start := math.Max(now, wl.busyUntil)
	done := start + float64(8*bytes)/wl.bndwdth
	wl.busyUntil = done
	return done + wl.latency
}

type portKey struct {
	proto Protocol
	port  uint16
}

// receiver is anything bound to a port of a host
type receiver interface {
	receive(n *Network, pkt *packet, now float64)
}

// host is a node with an IP stack: the remote host, the PGW and every UE
type host struct {
	handle    EndpointHandle
	nextPort  uint16
	listeners map[portKey]receiver
}

func createHost(handle EndpointHandle) *host {
	return &host{handle: handle, nextPort: firstEphemeralPort, listeners: make(map[portKey]receiver)}
}

func (h *host) ephemeralPort() uint16 {
	port := h.nextPort
	h.nextPort += 1
	return port
}

// enbNode is a base station and its air interface
type enbNode struct {
	handle EndpointHandle
	index  int
	pos    Position
	dl     *TaskScheduler
	ul     *TaskScheduler
	rng    *rngstream.RngStream
}

// ueNode is a mobile device
type ueNode struct {
	handle EndpointHandle
	index  int
	walk   *randomWalk
}

// hop is one step of a packet's path: a wired link, or the air interface
// between a UE and an eNB
type hop struct {
	link     *wiredLink
	enb      *enbNode
	ue       *ueNode
	downlink bool
}

// packet is one IP packet in flight
type packet struct {
	src, dst EndpointID
	tuple    FiveTuple
	flowID   FlowID
	size     int // bytes on the wire
	payload  int
	seq      uint64
	ack      bool
	txTime   float64
	hops     []hop
	hopIdx   int
	air      airLink
}

// Network is an event-driven Simulator.  Every Network owns its event manager,
// random streams, counters and topology; nothing is shared between instances.
type Network struct {
	cfg    *ScenarioConfig
	logger logging.Logger
	evtMgr *evtm.EventManager

	nxtID   EndpointID
	handles map[EndpointID]EndpointHandle
	names   map[EndpointID]string
	hosts   map[EndpointID]*host
	enbs    []*enbNode
	ues     []*ueNode
	ueByID  map[EndpointID]*ueNode

	core      CoreNodes
	coreBuilt bool
	nxtUEAddr netip.Addr

	links   map[linkKey]*wiredLink
	routes  *routeTable
	flowmon *flowMonitor

	flows []TrafficFlow
	ran   bool
}

// CreateNetwork is a constructor.  The configuration supplies the radio
// parameters, the movement bound and the walk speed.
func CreateNetwork(cfg *ScenarioConfig, logger logging.Logger) *Network {
	if logger == nil {
		logger = logging.Noop()
	}
	n := new(Network)
	n.cfg = cfg
	n.logger = logger
	n.evtMgr = evtm.New()
	n.handles = make(map[EndpointID]EndpointHandle)
	n.names = make(map[EndpointID]string)
	n.hosts = make(map[EndpointID]*host)
	n.enbs = []*enbNode{}
	n.ues = []*ueNode{}
	n.ueByID = make(map[EndpointID]*ueNode)
	n.links = make(map[linkKey]*wiredLink)
	n.routes = createRouteTable()
	n.flowmon = createFlowMonitor()
	n.flows = []TrafficFlow{}
	n.nxtUEAddr = netip.AddrFrom4([4]byte{7, 0, 0, 1})
	return n
}

func (n *Network) newHandle(name string, role Role, addr netip.Addr) EndpointHandle {
	n.nxtID += 1
	handle := EndpointHandle{ID: n.nxtID, Name: name, Role: role, Addr: addr}
	n.handles[handle.ID] = handle
	n.names[handle.ID] = name
	return handle
}

// connect creates a duplex wired link between a and b
func (n *Network) connect(a, b EndpointID, bndwdth, latency float64) {
	n.links[linkKey{from: a, to: b}] = &wiredLink{bndwdth: bndwdth, latency: latency}
	n.links[linkKey{from: b, to: a}] = &wiredLink{bndwdth: bndwdth, latency: latency}
	n.routes.addEdge(a, b)
}

// CreateCoreNetwork builds the wired core: remote host, PGW, SGW and MME.
// The handles are returned by name.
func (n *Network) CreateCoreNetwork() (CoreNodes, error) {
	if n.coreBuilt {
		return CoreNodes{}, fmt.Errorf("core network already created")
	}

	pgw := n.newHandle("pgw", RolePGW, netip.AddrFrom4([4]byte{1, 0, 0, 1}))
	sgw := n.newHandle("sgw", RoleSGW, netip.Addr{})
	mme := n.newHandle("mme", RoleMME, netip.Addr{})
	remote := n.newHandle("remotehost", RoleRemoteHost, netip.AddrFrom4([4]byte{1, 0, 0, 2}))

	n.hosts[pgw.ID] = createHost(pgw)
	n.hosts[remote.ID] = createHost(remote)

	n.connect(remote.ID, pgw.ID, internetBndwdth, internetLatency)
	n.connect(pgw.ID, sgw.ID, coreBndwdth, coreLatency)
	n.connect(sgw.ID, mme.ID, coreBndwdth, coreLatency)

	n.core = CoreNodes{Remote: remote, PGW: pgw, SGW: sgw, MME: mme}
	n.coreBuilt = true

	n.logger.Debug(context.Background(), "core network created",
		logging.String("remote", remote.String()), logging.String("pgw", pgw.String()))
	return n.core, nil
}

// CreateEndpoints creates one eNB or UE per position.  eNBs are linked to the
// SGW and need the core to exist.  UEs start a random walk from their position
// and attach over the air to the nearest eNB whenever they send or receive.
func (n *Network) CreateEndpoints(role Role, positions []Position) ([]EndpointHandle, error) {
	if n.ran {
		return nil, fmt.Errorf("cannot create endpoints after the run")
	}

	handles := make([]EndpointHandle, 0, len(positions))
	switch role {
	case RoleENodeB:
		if !n.coreBuilt {
			return nil, configErr("enbs", "eNodeBs need the core network to be created first")
		}
		for _, pos := range positions {
			index := len(n.enbs)
			name := fmt.Sprintf("enb-%d", index)
			enb := &enbNode{
				handle: n.newHandle(name, RoleENodeB, netip.Addr{}),
				index:  index,
				pos:    pos,
				dl:     CreateTaskScheduler(n.cfg.ComponentCarriers(), ttiSeconds),
				ul:     CreateTaskScheduler(n.cfg.ComponentCarriers(), ttiSeconds),
				rng:    rngstream.New(n.cfg.Seed + "-radio-" + name),
			}
			n.enbs = append(n.enbs, enb)
			n.connect(n.core.SGW.ID, enb.handle.ID, coreBndwdth, coreLatency)
			handles = append(handles, enb.handle)
		}

	case RoleUE:
		for _, pos := range positions {
			index := len(n.ues)
			name := fmt.Sprintf("ue-%d", index)
			n.nxtUEAddr = n.nxtUEAddr.Next()
			handle := n.newHandle(name, RoleUE, n.nxtUEAddr)

			rng := rngstream.New(n.cfg.Seed + "-mobility-" + name)
			ue := &ueNode{
				handle: handle,
				index:  index,
				walk:   createRandomWalk(pos, n.cfg.WalkSpeed, uniformAngle(rng), n.cfg.Bounds),
			}
			n.ues = append(n.ues, ue)
			n.ueByID[handle.ID] = ue
			n.hosts[handle.ID] = createHost(handle)
			handles = append(handles, handle)
		}

	default:
		return nil, configErr("role", "cannot create endpoints of role %s", role)
	}
	return handles, nil
}

// servingEnb is the eNB nearest to the UE at time now
func (n *Network) servingEnb(ue *ueNode, now float64) *enbNode {
	pos := ue.walk.positionAt(now)
	var best *enbNode
	bestDist := math.Inf(1)
	for _, enb := range n.enbs {
		if d := pos.DistanceTo(enb.pos); d < bestDist {
			best, bestDist = enb, d
		}
	}
	return best
}

// wiredRoute returns the wired nodes visited going from one wired node to another.
// User-plane traffic is anchored at the PGW, so the route always runs through it.
func (n *Network) wiredRoute(from, to EndpointID) ([]EndpointID, error) {
	up, err := n.routes.routeFrom(from, n.core.PGW.ID)
	if err != nil {
		return nil, err
	}
	down, err := n.routes.routeFrom(n.core.PGW.ID, to)
	if err != nil {
		return nil, err
	}
	return append(up, down[1:]...), nil
}

// flowRoute is the wired route of a flow at its start time, with each UE
// replaced by the eNB serving it then
func (n *Network) flowRoute(flow TrafficFlow) ([]EndpointID, error) {
	if len(n.enbs) == 0 {
		return nil, configErr(flow.Name, "no eNodeB to carry the flow")
	}
	now := flow.Start.Seconds()
	from, to := flow.Src.ID, flow.Dst.ID
	if ue, present := n.ueByID[from]; present {
		from = n.servingEnb(ue, now).handle.ID
	}
	if ue, present := n.ueByID[to]; present {
		to = n.servingEnb(ue, now).handle.ID
	}
	return n.wiredRoute(from, to)
}

// wiredPath returns the links crossed going from one wired node to another
func (n *Network) wiredPath(from, to EndpointID) ([]hop, error) {
	route, err := n.wiredRoute(from, to)
	if err != nil {
		return nil, err
	}

	hops := make([]hop, 0, len(route))
	for idx := 1; idx < len(route); idx++ {
		link, present := n.links[linkKey{from: route[idx-1], to: route[idx]}]
		if !present {
			return nil, fmt.Errorf("no link from %d to %d", route[idx-1], route[idx])
		}
		hops = append(hops, hop{link: link})
	}
	return hops, nil
}

// pathFor returns the hops a packet sent at time now from src to dst crosses
func (n *Network) pathFor(src, dst EndpointID, now float64) ([]hop, error) {
	hops := []hop{}

	from := src
	if ue, present := n.ueByID[src]; present {
		enb := n.servingEnb(ue, now)
		hops = append(hops, hop{enb: enb, ue: ue})
		from = enb.handle.ID
	}

	to := dst
	var dstUE *ueNode
	var dstEnb *enbNode
	if ue, present := n.ueByID[dst]; present {
		dstUE = ue
		dstEnb = n.servingEnb(ue, now)
		to = dstEnb.handle.ID
	}

	wired, err := n.wiredPath(from, to)
	if err != nil {
		return nil, err
	}
	hops = append(hops, wired...)

	if dstUE != nil {
		hops = append(hops, hop{enb: dstEnb, ue: dstUE, downlink: true})
	}
	return hops, nil
}

// send hands a packet to the network at the current time
func (n *Network) send(pkt *packet) {
	now := n.evtMgr.CurrentSeconds()
	hops, err := n.pathFor(pkt.src, pkt.dst, now)
	if err != nil {
		n.logger.Warn(context.Background(), "packet not routable",
			logging.String("tuple", pkt.tuple.String()), logging.String("error", err.Error()))
		return
	}
	pkt.hops = hops
	pkt.hopIdx = 0
	pkt.txTime = now
	n.flowmon.recordTx(pkt, now)
	n.evtMgr.Schedule(n, pkt, forward, vrtime.SecondsToTime(0.0))
}

// forward moves a packet across its next hop, or delivers it when none is left
func forward(evtMgr *evtm.EventManager, context any, data any) any {
	n := context.(*Network)
	pkt := data.(*packet)
	now := evtMgr.CurrentSeconds()

	if pkt.hopIdx == len(pkt.hops) {
		n.deliver(pkt, now)
		return nil
	}

	h := pkt.hops[pkt.hopIdx]
	pkt.hopIdx += 1

	if h.link != nil {
		arrive := h.link.transit(now, pkt.size)
		evtMgr.Schedule(n, pkt, forward, vrtime.SecondsToTime(roundFloat(arrive-now, rdigits)))
		return nil
	}

	// air interface: the link is evaluated where the UE is now
	pos := h.ue.walk.positionAt(now)
	fading := rayleighGain(h.enb.rng)
	sched := h.enb.ul
	op := "ul"
	if h.downlink {
		pkt.air = n.downlink(pos, h.enb, fading)
		sched = h.enb.dl
		op = "dl"
	} else {
		pkt.air = n.uplink(pos, h.enb, fading)
	}

	if !(pkt.air.rate > 0) {
		n.flowmon.recordDrop(pkt)
		return nil
	}
	req := float64(8*pkt.size) / pkt.air.rate
	sched.Schedule(evtMgr, op, req, ttiSeconds, n, pkt, airComplete)
	return nil
}

// airComplete is called when a packet's transmission over the air has been
// fully scheduled.  The packet survives with probability 1 - PER.
func airComplete(evtMgr *evtm.EventManager, context any, data any) any {
	n := context.(*Network)
	pkt := data.(*packet)
	enb := pkt.hops[pkt.hopIdx-1].enb

	if bernoulli(enb.rng, pkt.air.per) {
		n.flowmon.recordDrop(pkt)
		return nil
	}
	return forward(evtMgr, context, data)
}

// deliver records the reception and passes the packet to whatever is bound
// to its destination port
func (n *Network) deliver(pkt *packet, now float64) {
	n.flowmon.recordRx(pkt, now)

	dst, present := n.hosts[pkt.dst]
	if !present {
		return
	}
	if rcvr, present := dst.listeners[portKey{proto: pkt.tuple.Protocol, port: pkt.tuple.DstPort}]; present {
		rcvr.receive(n, pkt, now)
	}
}

// AttachTrafficGenerator installs the sink of the flow on its destination and
// its generator on its source, and schedules the generator to start
func (n *Network) AttachTrafficGenerator(flow TrafficFlow) error {
	if n.ran {
		return fmt.Errorf("cannot attach flow %s after the run", flow.Name)
	}
	if err := flow.Validate(n.cfg.SimTime); err != nil {
		return err
	}
	srcHost, present := n.hosts[flow.Src.ID]
	if !present {
		return configErr(flow.Name, "source %s cannot originate traffic", flow.Src)
	}
	dstHost, present := n.hosts[flow.Dst.ID]
	if !present {
		return configErr(flow.Name, "destination %s cannot receive traffic", flow.Dst)
	}
	route, err := n.flowRoute(flow)
	if err != nil {
		return err
	}

	switch flow.Kind {
	case StreamFlow:
		installSink(dstHost, portKey{proto: flow.Protocol, port: flow.Port})
		client := createStreamClient(n, flow, srcHost)
		n.evtMgr.Schedule(client, nil, streamSend, vrtime.SecondsToTime(flow.Start.Seconds()))
	case BulkFlow:
		installBulkReceiver(dstHost, portKey{proto: flow.Protocol, port: flow.Port})
		sender := createBulkSender(n, flow, srcHost)
		n.evtMgr.Schedule(sender, nil, bulkStart, vrtime.SecondsToTime(flow.Start.Seconds()))
	}

	n.flows = append(n.flows, flow)
	n.logger.Debug(context.Background(), "traffic generator attached",
		logging.String("flow", flow.Name), logging.String("kind", flow.Kind.String()),
		logging.String("src", flow.Src.String()), logging.String("dst", flow.Dst.String()),
		logging.String("route", ShowPath(route, n.names)))
	return nil
}

// RunFor executes the simulation for the given simulated duration.  A Network
// runs once; its counters are final when RunFor returns.
func (n *Network) RunFor(d time.Duration) error {
	if n.ran {
		return fmt.Errorf("network already ran")
	}
	if d <= 0 {
		return configErr("simtime", "must be positive, got %s", d)
	}
	if len(n.ues) > 0 && len(n.enbs) == 0 {
		return configErr("enbs", "UEs present but no eNodeB to attach to")
	}
	n.ran = true

	n.evtMgr.Run(d.Seconds())

	n.logger.Info(context.Background(), "simulation finished",
		logging.Float("simtime", d.Seconds()),
		logging.Int("flows", len(n.flowmon.tuples)),
		logging.Int("generators", len(n.flows)))
	for _, enb := range n.enbs {
		n.logger.Debug(context.Background(), "air interface utilization",
			logging.String("enb", enb.handle.Name),
			logging.Float("dl", enb.dl.BusyTime()/(d.Seconds()*float64(enb.dl.cores))),
			logging.Float("ul", enb.ul.BusyTime()/(d.Seconds()*float64(enb.ul.cores))))
	}
	return nil
}

// RawCounters returns a copy of the counters of every flow observed
func (n *Network) RawCounters() map[FlowID]RawFlowCounters {
	return n.flowmon.snapshot()
}

// ClassifyFlow returns the five-tuple a FlowID was assigned to
func (n *Network) ClassifyFlow(id FlowID) (FiveTuple, bool) {
	return n.flowmon.lookup(id)
}

// UEPosition returns where a UE is t seconds into the run
func (n *Network) UEPosition(handle EndpointHandle, t time.Duration) (Position, bool) {
	ue, present := n.ueByID[handle.ID]
	if !present {
		return Position{}, false
	}
	return ue.walk.positionAt(t.Seconds()), true
}

// ServingENodeB returns the eNB a UE is attached to t seconds into the run
func (n *Network) ServingENodeB(handle EndpointHandle, t time.Duration) (EndpointHandle, bool) {
	ue, present := n.ueByID[handle.ID]
	if !present || len(n.enbs) == 0 {
		return EndpointHandle{}, false
	}
	return n.servingEnb(ue, t.Seconds()).handle, true
}
