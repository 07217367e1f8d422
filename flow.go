package ltesim

// flow.go holds the traffic generators and sinks the Network installs for
// each TrafficFlow: a periodic datagram client, a window-limited reliable
// bulk sender with per-segment acknowledgement, and the sinks that receive them.

import (
	"context"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"

	"github.com/iti/ltesim/internal/logging"
)

const (
	// segments a bulk sender may have unacknowledged
	bulkWindow = 64

	// retransmission timeout of a bulk segment, seconds
	bulkRTO = 0.2

	ackSize = ipHeader + tcpHeader
)

// packetSink counts what arrives at a port.  Datagram streams need nothing more.
type packetSink struct {
	rxPackets uint64
	rxBytes   uint64
}

func (ps *packetSink) receive(n *Network, pkt *packet, now float64) {
	ps.rxPackets += 1
	ps.rxBytes += uint64(pkt.payload)
}

// installSink binds a packetSink to the port unless something is bound already;
// several flows may share one sink
func installSink(h *host, key portKey) {
	if _, present := h.listeners[key]; !present {
		h.listeners[key] = new(packetSink)
	}
}

// bulkReceiver is the sink of a reliable flow.  It acknowledges every segment.
type bulkReceiver struct {
	packetSink
}

func (br *bulkReceiver) receive(n *Network, pkt *packet, now float64) {
	if pkt.ack {
		return
	}
	br.packetSink.receive(n, pkt, now)
	n.send(&packet{
		src:   pkt.dst,
		dst:   pkt.src,
		tuple: pkt.tuple.Reverse(),
		size:  ackSize,
		seq:   pkt.seq,
		ack:   true,
	})
}

func installBulkReceiver(h *host, key portKey) {
	if _, present := h.listeners[key]; !present {
		h.listeners[key] = new(bulkReceiver)
	}
}

// streamClient sends a datagram every Interval from Start until Stop or until
// MaxPackets have been sent
type streamClient struct {
	n     *Network
	flow  TrafficFlow
	src   *host
	tuple FiveTuple
	sent  uint32
	stop  float64
}

func createStreamClient(n *Network, flow TrafficFlow, src *host) *streamClient {
	sc := &streamClient{n: n, flow: flow, src: src, stop: flow.Stop.Seconds()}
	sc.tuple = FiveTuple{
		SrcAddr:  flow.Src.Addr,
		DstAddr:  flow.Dst.Addr,
		SrcPort:  src.ephemeralPort(),
		DstPort:  flow.Port,
		Protocol: flow.Protocol,
	}
	return sc
}

// streamSend emits one datagram and schedules the next
func streamSend(evtMgr *evtm.EventManager, context any, data any) any {
	sc := context.(*streamClient)
	now := evtMgr.CurrentSeconds()
	if now >= sc.stop || sc.sent >= sc.flow.MaxPackets {
		return nil
	}

	sc.sent += 1
	sc.n.send(&packet{
		src:     sc.flow.Src.ID,
		dst:     sc.flow.Dst.ID,
		tuple:   sc.tuple,
		size:    sc.flow.PacketSize + ipHeader + udpHeader,
		payload: sc.flow.PacketSize,
		seq:     uint64(sc.sent),
	})

	evtMgr.Schedule(sc, nil, streamSend, vrtime.SecondsToTime(sc.flow.Interval.Seconds()))
	return nil
}

// bulkSender moves MaxBytes in PacketSize segments to the receiver, keeping at
// most bulkWindow segments unacknowledged and resending a segment whose
// acknowledgement has not come back within bulkRTO
type bulkSender struct {
	n     *Network
	flow  TrafficFlow
	tuple FiveTuple
	stop  float64

	segments   uint64
	nextSeq    uint64
	acked      []bool
	ackedCount uint64
	inflight   int
	resent     uint64
}

type bulkTimeout struct {
	sender *bulkSender
	seq    uint64
}

func createBulkSender(n *Network, flow TrafficFlow, src *host) *bulkSender {
	bs := &bulkSender{n: n, flow: flow, stop: flow.Stop.Seconds()}
	bs.tuple = FiveTuple{
		SrcAddr:  flow.Src.Addr,
		DstAddr:  flow.Dst.Addr,
		SrcPort:  src.ephemeralPort(),
		DstPort:  flow.Port,
		Protocol: flow.Protocol,
	}
	size := uint64(flow.PacketSize)
	bs.segments = (flow.MaxBytes + size - 1) / size
	bs.acked = make([]bool, bs.segments)

	// acknowledgements come back to the sender's own port
	src.listeners[portKey{proto: flow.Protocol, port: bs.tuple.SrcPort}] = bs
	return bs
}

// segmentPayload is the payload of segment seq; the last one may be short
func (bs *bulkSender) segmentPayload(seq uint64) int {
	size := uint64(bs.flow.PacketSize)
	if seq == bs.segments-1 && bs.flow.MaxBytes%size != 0 {
		return int(bs.flow.MaxBytes % size)
	}
	return bs.flow.PacketSize
}

func (bs *bulkSender) sendSegment(seq uint64) {
	payload := bs.segmentPayload(seq)
	bs.n.send(&packet{
		src:     bs.flow.Src.ID,
		dst:     bs.flow.Dst.ID,
		tuple:   bs.tuple,
		size:    payload + ipHeader + tcpHeader,
		payload: payload,
		seq:     seq,
	})
	bs.n.evtMgr.Schedule(bulkTimeout{sender: bs, seq: seq}, nil, bulkRetransmit, vrtime.SecondsToTime(bulkRTO))
}

// fill sends new segments while the window allows
func (bs *bulkSender) fill(now float64) {
	for bs.inflight < bulkWindow && bs.nextSeq < bs.segments && now < bs.stop {
		bs.sendSegment(bs.nextSeq)
		bs.nextSeq += 1
		bs.inflight += 1
	}
}

// receive handles an acknowledgement
func (bs *bulkSender) receive(n *Network, pkt *packet, now float64) {
	if !pkt.ack || pkt.seq >= bs.segments || bs.acked[pkt.seq] {
		return
	}
	bs.acked[pkt.seq] = true
	bs.ackedCount += 1
	bs.inflight -= 1

	if bs.ackedCount == bs.segments {
		n.logger.Debug(context.Background(), "bulk transfer complete",
			logging.String("flow", bs.flow.Name), logging.Float("at", now),
			logging.Uint64("resent", bs.resent))
		return
	}
	bs.fill(now)
}

func bulkStart(evtMgr *evtm.EventManager, context any, data any) any {
	bs := context.(*bulkSender)
	bs.fill(evtMgr.CurrentSeconds())
	return nil
}

// bulkRetransmit resends a segment still unacknowledged when its timer expires
func bulkRetransmit(evtMgr *evtm.EventManager, context any, data any) any {
	bt := context.(bulkTimeout)
	bs := bt.sender
	if bs.acked[bt.seq] || evtMgr.CurrentSeconds() >= bs.stop {
		return nil
	}
	bs.resent += 1
	bs.sendSegment(bt.seq)
	return nil
}
