package regime

// Params are the regime-tuned settings handed to an indicator.
type Params struct {
	RSIPeriod       int     `json:"rsi_period,omitempty"`
	RSIOverbought   float64 `json:"rsi_overbought,omitempty"`
	RSIOversold     float64 `json:"rsi_oversold,omitempty"`
	EMAFastPeriod   int     `json:"ema_fast_period,omitempty"`
	EMASlowPeriod   int     `json:"ema_slow_period,omitempty"`
	ATRPeriod       int     `json:"atr_period,omitempty"`
	StopATRMultiple float64 `json:"stop_atr_multiple,omitempty"`
}

type adjustKey struct {
	indicator  string
	volatility string
	trend      string
}

// defaults per indicator, applied when no specific tuning matches.
var defaultParams = map[string]Params{
	"rsi":          {RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30},
	"ema_cross":    {EMAFastPeriod: 12, EMASlowPeriod: 26},
	"atr_breakout": {ATRPeriod: 14, StopATRMultiple: 2.0},
}

// adjustments is the hand-tuned lookup table. Empty trend or volatility in
// the key acts as a wildcard. Rationale per row:
//   - high volatility widens RSI bands (fewer false extremes) and shortens
//     the ATR period (stops track the newer, larger ranges);
//   - strong trends lengthen EMA periods (fewer whipsaw crossings) and relax
//     the RSI overbought band (trends pin RSI high);
//   - ranging markets tighten RSI bands (extremes mean-revert sooner).
var adjustments = map[adjustKey]Params{
	{"rsi", VolHigh, ""}:        {RSIPeriod: 14, RSIOverbought: 80, RSIOversold: 20},
	{"rsi", "", TrendStrong}:    {RSIPeriod: 14, RSIOverbought: 75, RSIOversold: 35},
	{"rsi", "", TrendRanging}:   {RSIPeriod: 10, RSIOverbought: 65, RSIOversold: 35},
	{"ema_cross", "", TrendStrong}:  {EMAFastPeriod: 20, EMASlowPeriod: 50},
	{"ema_cross", "", TrendRanging}: {EMAFastPeriod: 8, EMASlowPeriod: 21},
	{"atr_breakout", VolHigh, ""}:   {ATRPeriod: 7, StopATRMultiple: 3.0},
	{"atr_breakout", VolLow, ""}:    {ATRPeriod: 21, StopATRMultiple: 1.5},
}

// Adjust returns the tuned parameters for an indicator under the given
// profile. Volatility-specific rows outrank trend-specific rows; the
// indicator's defaults apply when nothing matches.
func Adjust(indicator string, p Profile) Params {
	if params, ok := adjustments[adjustKey{indicator, p.VolatilityRegime, p.TrendRegime}]; ok {
		return params
	}
	if params, ok := adjustments[adjustKey{indicator, p.VolatilityRegime, ""}]; ok {
		return params
	}
	if params, ok := adjustments[adjustKey{indicator, "", p.TrendRegime}]; ok {
		return params
	}
	return defaultParams[indicator]
}
