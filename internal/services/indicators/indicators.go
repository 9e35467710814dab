package indicators

import (
    "math"

    "SignalPulse/internal/domain/models"
)

// Params holds indicator periods and bands.
type Params struct {
    RSIPeriod        int
    MACDFast         int
    MACDSlow         int
    MACDSignal       int
    BollingerPeriod  int
    BollingerStdDev  float64
    StochasticPeriod int
    StochasticSmooth int
    WilliamsPeriod   int
}

// DefaultParams returns the textbook periods.
func DefaultParams() Params {
    return Params{
        RSIPeriod:        14,
        MACDFast:         12,
        MACDSlow:         26,
        MACDSignal:       9,
        BollingerPeriod:  20,
        BollingerStdDev:  2,
        StochasticPeriod: 14,
        StochasticSmooth: 3,
        WilliamsPeriod:   14,
    }
}

// MinSamples is the shortest window that yields at least one indicator.
func (p Params) MinSamples() int {
    m := p.RSIPeriod + 1
    for _, n := range []int{
        p.MACDSlow + p.MACDSignal,
        p.BollingerPeriod,
        p.StochasticPeriod + p.StochasticSmooth - 1,
        p.WilliamsPeriod,
    } {
        if n < m {
            m = n
        }
    }
    return m
}

// Values is the set of indicators computed from one window. Nil fields need
// more samples.
type Values struct {
    RSI        *float64
    MACD       *models.MACDValue
    Bollinger  *models.BollingerValue
    Stochastic *models.StochasticValue
    WilliamsR  *float64
}

// Compute evaluates every indicator over closes (oldest first).
func Compute(closes []float64, p Params) Values {
    var v Values
    if rsi, ok := RSI(closes, p.RSIPeriod); ok {
        v.RSI = &rsi
    }
    if m, ok := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); ok {
        v.MACD = &m
    }
    if b, ok := Bollinger(closes, p.BollingerPeriod, p.BollingerStdDev); ok {
        v.Bollinger = &b
    }
    if s, ok := Stochastic(closes, p.StochasticPeriod, p.StochasticSmooth); ok {
        v.Stochastic = &s
    }
    if w, ok := WilliamsR(closes, p.WilliamsPeriod); ok {
        v.WilliamsR = &w
    }
    return v
}

// RSI computes the Wilder-smoothed relative strength index.
// Requires at least period+1 closes.
func RSI(closes []float64, period int) (float64, bool) {
    if period <= 0 || len(closes) < period+1 {
        return 0, false
    }

    var avgGain, avgLoss float64
    for i := 1; i <= period; i++ {
        change := closes[i] - closes[i-1]
        if change > 0 {
            avgGain += change
        } else {
            avgLoss -= change
        }
    }
    avgGain /= float64(period)
    avgLoss /= float64(period)

    for i := period + 1; i < len(closes); i++ {
        change := closes[i] - closes[i-1]
        gain, loss := 0.0, 0.0
        if change > 0 {
            gain = change
        } else {
            loss = -change
        }
        avgGain = (avgGain*float64(period-1) + gain) / float64(period)
        avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
    }

    switch {
    case avgGain == 0 && avgLoss == 0:
        return 50, true
    case avgLoss == 0:
        return 100, true
    }
    rs := avgGain / avgLoss
    return 100 - 100/(1+rs), true
}

// EMASeries returns the exponential moving average at every index, seeded
// with the first value.
func EMASeries(values []float64, period int) []float64 {
    if len(values) == 0 || period <= 0 {
        return nil
    }
    k := 2.0 / float64(period+1)
    out := make([]float64, len(values))
    out[0] = values[0]
    for i := 1; i < len(values); i++ {
        out[i] = values[i]*k + out[i-1]*(1-k)
    }
    return out
}

// MACD computes EMA(fast)-EMA(slow) and its signal EMA over the valid part of
// the MACD series. Requires slow+signal closes.
func MACD(closes []float64, fast, slow, signal int) (models.MACDValue, bool) {
    if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
        return models.MACDValue{}, false
    }
    fastEMA := EMASeries(closes, fast)
    slowEMA := EMASeries(closes, slow)

    line := make([]float64, 0, len(closes)-slow+1)
    for i := slow - 1; i < len(closes); i++ {
        line = append(line, fastEMA[i]-slowEMA[i])
    }
    sig := EMASeries(line, signal)

    last := line[len(line)-1]
    lastSig := sig[len(sig)-1]
    return models.MACDValue{Line: last, Signal: lastSig, Histogram: last - lastSig}, true
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, bool) {
    if period <= 0 || len(values) < period {
        return 0, false
    }
    sum := 0.0
    for _, v := range values[len(values)-period:] {
        sum += v
    }
    return sum / float64(period), true
}

// Bollinger computes SMA(period) +/- k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (models.BollingerValue, bool) {
    mid, ok := SMA(closes, period)
    if !ok {
        return models.BollingerValue{}, false
    }
    variance := 0.0
    for _, v := range closes[len(closes)-period:] {
        d := v - mid
        variance += d * d
    }
    sd := math.Sqrt(variance / float64(period))
    return models.BollingerValue{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd}, true
}

func highLow(values []float64) (hi, lo float64) {
    hi, lo = values[0], values[0]
    for _, v := range values[1:] {
        if v > hi {
            hi = v
        }
        if v < lo {
            lo = v
        }
    }
    return hi, lo
}

// Stochastic computes %K over the period high/low range of closes and %D as
// the smooth-period SMA of %K. A flat range yields 50.
func Stochastic(closes []float64, period, smooth int) (models.StochasticValue, bool) {
    if period <= 0 || smooth <= 0 || len(closes) < period+smooth-1 {
        return models.StochasticValue{}, false
    }
    ks := make([]float64, 0, smooth)
    for end := len(closes) - smooth + 1; end <= len(closes); end++ {
        w := closes[end-period : end]
        hi, lo := highLow(w)
        k := 50.0
        if hi > lo {
            k = (w[len(w)-1] - lo) / (hi - lo) * 100
        }
        ks = append(ks, k)
    }
    d, _ := SMA(ks, smooth)
    return models.StochasticValue{K: ks[len(ks)-1], D: d}, true
}

// WilliamsR maps the close into [-100, 0] against the period high/low range.
// A flat range yields -50.
func WilliamsR(closes []float64, period int) (float64, bool) {
    if period <= 0 || len(closes) < period {
        return 0, false
    }
    w := closes[len(closes)-period:]
    hi, lo := highLow(w)
    if hi == lo {
        return -50, true
    }
    return (hi - w[len(w)-1]) / (hi - lo) * -100, true
}
