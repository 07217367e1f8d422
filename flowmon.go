package ltesim

// flowmon.go classifies packets into flows by five-tuple and keeps the raw
// per-flow counters of a run.  Transmissions are recorded where a packet
// enters the network, receptions where it is delivered.

// RawFlowCounters are the counters kept for one flow.  Times are simulation
// seconds.  They are read-only once the run has finished.
type RawFlowCounters struct {
	TxPackets uint64 `json:"txpackets" yaml:"txpackets" xml:"txPackets,attr"`
	TxBytes   uint64 `json:"txbytes" yaml:"txbytes" xml:"txBytes,attr"`
	RxPackets uint64 `json:"rxpackets" yaml:"rxpackets" xml:"rxPackets,attr"`
	RxBytes   uint64 `json:"rxbytes" yaml:"rxbytes" xml:"rxBytes,attr"`

	TimeFirstTx float64 `json:"timefirsttx" yaml:"timefirsttx" xml:"timeFirstTxPacket,attr"`
	TimeLastTx  float64 `json:"timelasttx" yaml:"timelasttx" xml:"timeLastTxPacket,attr"`
	TimeFirstRx float64 `json:"timefirstrx" yaml:"timefirstrx" xml:"timeFirstRxPacket,attr"`
	TimeLastRx  float64 `json:"timelastrx" yaml:"timelastrx" xml:"timeLastRxPacket,attr"`

	// sum of per-packet delays, and of the absolute differences between
	// the delays of consecutive received packets
	DelaySum  float64 `json:"delaysum" yaml:"delaysum" xml:"delaySum,attr"`
	JitterSum float64 `json:"jittersum" yaml:"jittersum" xml:"jitterSum,attr"`
	LastDelay float64 `json:"lastdelay" yaml:"lastdelay" xml:"lastDelay,attr"`

	// packets seen lost on the air interface
	Dropped uint64 `json:"dropped" yaml:"dropped" xml:"packetsDropped,attr"`
}

// flowMonitor owns the classifier and the counters of one Network
type flowMonitor struct {
	ids    map[FiveTuple]FlowID
	tuples []FiveTuple // tuples[id-1]
	stats  map[FlowID]*RawFlowCounters
}

func createFlowMonitor() *flowMonitor {
	return &flowMonitor{
		ids:    make(map[FiveTuple]FlowID),
		tuples: []FiveTuple{},
		stats:  make(map[FlowID]*RawFlowCounters),
	}
}

// classify returns the FlowID of the tuple, assigning the next one if the
// tuple has not been seen
func (fm *flowMonitor) classify(tuple FiveTuple) FlowID {
	if id, present := fm.ids[tuple]; present {
		return id
	}
	fm.tuples = append(fm.tuples, tuple)
	id := FlowID(len(fm.tuples))
	fm.ids[tuple] = id
	fm.stats[id] = new(RawFlowCounters)
	return id
}

// lookup returns the tuple a FlowID was assigned to
func (fm *flowMonitor) lookup(id FlowID) (FiveTuple, bool) {
	if id == 0 || int(id) > len(fm.tuples) {
		return FiveTuple{}, false
	}
	return fm.tuples[id-1], true
}

func (fm *flowMonitor) recordTx(pkt *packet, now float64) {
	pkt.flowID = fm.classify(pkt.tuple)
	stats := fm.stats[pkt.flowID]
	if stats.TxPackets == 0 {
		stats.TimeFirstTx = now
	}
	stats.TimeLastTx = now
	stats.TxPackets += 1
	stats.TxBytes += uint64(pkt.size)
}

func (fm *flowMonitor) recordRx(pkt *packet, now float64) {
	stats, present := fm.stats[pkt.flowID]
	if !present {
		return
	}
	delay := now - pkt.txTime
	if stats.RxPackets > 0 {
		jitter := delay - stats.LastDelay
		if jitter < 0 {
			jitter = -jitter
		}
		stats.JitterSum += jitter
	} else {
		stats.TimeFirstRx = now
	}
	stats.LastDelay = delay
	stats.DelaySum += delay
	stats.TimeLastRx = now
	stats.RxPackets += 1
	stats.RxBytes += uint64(pkt.size)
}

func (fm *flowMonitor) recordDrop(pkt *packet) {
	if stats, present := fm.stats[pkt.flowID]; present {
		stats.Dropped += 1
	}
}

// snapshot copies the counters out
func (fm *flowMonitor) snapshot() map[FlowID]RawFlowCounters {
	rtn := make(map[FlowID]RawFlowCounters, len(fm.stats))
	for id, stats := range fm.stats {
		rtn[id] = *stats
	}
	return rtn
}
