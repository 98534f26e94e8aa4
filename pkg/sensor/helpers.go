package sensor

const (
	// AtmosphericKPa is the surface reference pressure.
	AtmosphericKPa = 101.325
	// KPaPerMeter converts gauge pressure to meters of water.
	KPaPerMeter = 9.81

	transducerMinV   = 0.5
	transducerMaxV   = 4.5
	transducerMaxKPa = 206.8427 // 30 psi
)

// MapFloat linearly maps x from [inMin, inMax] to [outMin, outMax].
func MapFloat(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// VoltageToPressure converts the transducer output voltage to absolute
// pressure in kPa.
func VoltageToPressure(v float64) float64 {
	return MapFloat(v, transducerMinV, transducerMaxV, 0, transducerMaxKPa) + AtmosphericKPa
}

// DepthFromPressure returns meters of water above the probe.
func DepthFromPressure(kpa float64) float64 {
	return (kpa - AtmosphericKPa) / KPaPerMeter
}
