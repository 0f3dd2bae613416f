package scorer

import "math"

// SMA returns the simple moving average of the last period values.
// Returns 0 when there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// RSI returns the relative strength index over the given period. With fewer
// than period+1 values it returns the neutral 50.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Bollinger returns the upper, middle and lower band over the given period
// with numStd standard deviations. Zero bands mean not enough data.
func Bollinger(values []float64, period int, numStd float64) (upper, middle, lower float64) {
	if period <= 0 || len(values) < period {
		return 0, 0, 0
	}

	recent := values[len(values)-period:]
	sma := SMA(recent, period)

	var variance float64
	for _, v := range recent {
		variance += (v - sma) * (v - sma)
	}
	variance /= float64(period)
	std := math.Sqrt(variance)

	return sma + std*numStd, sma, sma - std*numStd
}

// MACDProxy returns a simplified moving-average oscillator: the current
// fast-minus-slow SMA spread and yesterday's spread as the signal proxy.
// EMA smoothing is deliberately skipped; the scorer only needs the sign and
// the direction of the spread.
func MACDProxy(values []float64, fast, slow int) (line, signal float64) {
	if len(values) < slow+1 {
		return 0, 0
	}

	line = SMA(values, fast) - SMA(values, slow)

	prev := values[:len(values)-1]
	signal = SMA(prev, fast) - SMA(prev, slow)
	return line, signal
}
