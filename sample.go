package ltesim

// sample.go holds the random variate and rounding helpers used by the
// packet-level simulation

import (
	"math"

	"github.com/iti/rngstream"
)

var rdigits uint = 12

// roundFloat rounds computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// expRV returns a sample of an exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// rayleighGain samples the power gain of a Rayleigh faded channel, which is
// exponentially distributed with unit mean
func rayleighGain(rng *rngstream.RngStream) float64 {
	return expRV(rng.RandU01(), 1.0)
}

// uniformAngle samples a direction in [0, 2*pi)
func uniformAngle(rng *rngstream.RngStream) float64 {
	return 2 * math.Pi * rng.RandU01()
}

// bernoulli reports true with probability p
func bernoulli(rng *rngstream.RngStream, p float64) bool {
	if p <= 0 {
		return false
	}
	return rng.RandU01() < p
}
