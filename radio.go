package ltesim

// radio.go is the coarse air-interface model of the simulator: log-distance
// path loss, Rayleigh fading, a Shannon-capped rate per component carrier
// and a logistic packet error curve.  It decides how long a packet occupies
// a carrier and whether it survives; nothing more.

import (
	"math"
)

const (
	rbBandwidthHz     = 180e3 // one resource block
	thermalNoiseDbmHz = -174.0
	ueNoiseFigureDb   = 9.0
	enbNoiseFigureDb  = 5.0

	// fraction of the Shannon bound achieved, and the ceiling set by 64-QAM
	shannonGap     = 0.75
	maxSpectralEff = 5.55

	// transmission time interval, the time-slice of the air scheduler
	ttiSeconds = 1e-3

	// SINR (dB) at which half the packets are lost, and the steepness of the curve
	perMidpointDb = -6.0
	perSlope      = 1.5

	// path loss below this distance is evaluated at this distance
	minDistance = 10.0

	// default EARFCNs of the primary carrier
	DefaultDlEarfcn = 100
	DefaultUlEarfcn = 18100
)

// pathLossDb is the macro-cell path loss at distance d metres
func pathLossDb(d float64) float64 {
	d = math.Max(d, minDistance)
	return 128.1 + 37.6*math.Log10(d/1000.0)
}

func dbmToMw(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

func linearToDb(v float64) float64 {
	return 10 * math.Log10(v)
}

// noiseMw is the thermal noise power over the given number of resource blocks
func noiseMw(rbs int, noiseFigure float64) float64 {
	return dbmToMw(thermalNoiseDbmHz + linearToDb(float64(rbs)*rbBandwidthHz) + noiseFigure)
}

// spectralEfficiency in bit/s/Hz for a linear SINR
func spectralEfficiency(sinr float64) float64 {
	return math.Min(shannonGap*math.Log2(1+sinr), maxSpectralEff)
}

// carrierRate is the bit rate one component carrier of rbs resource blocks
// gives a link at the given linear SINR
func carrierRate(rbs int, sinr float64) float64 {
	return float64(rbs) * rbBandwidthHz * spectralEfficiency(sinr)
}

// packetErrorRate is the probability a transport block sent at the given SINR (dB) is lost
func packetErrorRate(sinrDb float64) float64 {
	return 1.0 / (1.0 + math.Exp(perSlope*(sinrDb-perMidpointDb)))
}

// airLink is the state of one UE-eNB link at the instant a packet crosses it
type airLink struct {
	sinr float64 // linear
	rate float64 // bit/s on one carrier
	per  float64
}

// downlink evaluates the link from the serving eNB to a UE at position ue.
// Every other eNB transmits on the same carrier and interferes.
func (n *Network) downlink(ue Position, serving *enbNode, fading float64) airLink {
	signal := dbmToMw(n.cfg.EnbTxPower-pathLossDb(ue.DistanceTo(serving.pos))) * fading
	interference := 0.0
	for _, enb := range n.enbs {
		if enb == serving {
			continue
		}
		interference += dbmToMw(n.cfg.EnbTxPower - pathLossDb(ue.DistanceTo(enb.pos)))
	}
	sinr := signal / (interference + noiseMw(n.cfg.DlBandwidth, ueNoiseFigureDb))
	return airLink{sinr: sinr, rate: carrierRate(n.cfg.DlBandwidth, sinr), per: packetErrorRate(linearToDb(sinr))}
}

// uplink evaluates the link from a UE at position ue to its serving eNB.
// UEs of one cell are scheduled on orthogonal resources; inter-cell uplink
// interference is not modeled.
func (n *Network) uplink(ue Position, serving *enbNode, fading float64) airLink {
	signal := dbmToMw(n.cfg.TxPower-pathLossDb(ue.DistanceTo(serving.pos))) * fading
	sinr := signal / noiseMw(n.cfg.UlBandwidth, enbNoiseFigureDb)
	return airLink{sinr: sinr, rate: carrierRate(n.cfg.UlBandwidth, sinr), per: packetErrorRate(linearToDb(sinr))}
}
