package accuracy

// DefaultPriors seeds a new indicator record before any outcomes mature it.
// Values come from coarse historical hit rates; unlisted indicators start at
// an uninformative 0.5.
var DefaultPriors = map[string]float64{
	"rsi":            0.55,
	"macd":           0.55,
	"ema_cross":      0.52,
	"bollinger":      0.52,
	"atr_breakout":   0.48,
	"volume_profile": 0.50,
	"stochastic":     0.50,
	"candle_pattern": 0.47,
}
