// Package signalbridge maintains per-symbol rolling indicator state and
// turns bar-close events into trading signals via an external inference
// step. The incremental EMA/RSI/MACD/Bollinger update
// formulas are standard technical-analysis recurrences; the pack offers no
// single canonical indicator engine, so these are implemented directly
// from the numerical contracts states (RSI in [0,100], MACD =
// EMA12-EMA26 with an EMA9 signal line, Bollinger mid = SMA(n)).
package signalbridge

import (
	"math"
)

// SMAState is a fixed-window simple moving average updated incrementally
// via a circular buffer, avoiding full-history recomputation per bar.
type SMAState struct {
	period int
	buf []float64
	idx int
	filled bool
	sum float64
}

func NewSMA(period int) *SMAState {
	return &SMAState{period: period, buf: make([]float64, period)}
}

func (s *SMAState) Update(x float64) float64 {
	old := s.buf[s.idx]
	s.sum += x - old
	s.buf[s.idx] = x
	s.idx = (s.idx + 1) % s.period
	if s.idx == 0 {
		s.filled = true
	}
	return s.Value()
}

func (s *SMAState) Value() float64 {
	n := s.period
	if !s.filled {
		n = s.idx
		if n == 0 {
			return 0
		}
	}
	return s.sum / float64(n)
}

func (s *SMAState) Ready() bool { return s.filled }

// StdDevState tracks the sample standard deviation over the same window
// as an SMA, needed for Bollinger Bands.
type StdDevState struct {
	period int
	buf []float64
	idx int
	filled bool
}

func NewStdDev(period int) *StdDevState {
	return &StdDevState{period: period, buf: make([]float64, period)}
}

func (d *StdDevState) Update(x float64) float64 {
	d.buf[d.idx] = x
	d.idx = (d.idx + 1) % d.period
	if d.idx == 0 {
		d.filled = true
	}
	return d.Value()
}

func (d *StdDevState) Value() float64 {
	n := d.period
	if !d.filled {
		n = d.idx
	}
	if n < 2 {
		return 0
	}
	var mean float64
	for i := 0; i < n; i++ {
		mean += d.buf[i]
	}
	mean /= float64(n)
	var sumSq float64
	for i := 0; i < n; i++ {
		diff := d.buf[i] - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// EMAState is an exponential moving average updated in O(1) per sample —
// the standard smoothing-factor recurrence EMA_t = x*alpha + EMA_{t-1}*(1-alpha).
type EMAState struct {
	alpha float64
	value float64
	primed bool
}

func NewEMA(period int) *EMAState {
	return &EMAState{alpha: 2.0 / (float64(period) + 1.0)}
}

func (e *EMAState) Update(x float64) float64 {
	if !e.primed {
		e.value = x
		e.primed = true
		return e.value
	}
	e.value = x*e.alpha + e.value*(1-e.alpha)
	return e.value
}

func (e *EMAState) Value() float64 { return e.value }
func (e *EMAState) Ready() bool { return e.primed }

// RSIState implements Wilder's RSI(period), returned in [0,100] (spec
// §4.3 numerical contract), updated incrementally from successive closes.
type RSIState struct {
	period int
	prevClose float64
	primed bool
	avgGain float64
	avgLoss float64
	count int
	value float64
}

func NewRSI(period int) *RSIState {
	return &RSIState{period: period}
}

func (r *RSIState) Update(close float64) float64 {
	if !r.primed {
		r.prevClose = close
		r.primed = true
		return r.value
	}

	change := close - r.prevClose
	r.prevClose = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.count++
	if r.count <= r.period {
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
	} else {
		r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	if r.avgLoss == 0 {
		r.value = 100
		return r.value
	}
	rs := r.avgGain / r.avgLoss
	r.value = 100 - (100 / (1 + rs))
	return r.value
}

func (r *RSIState) Value() float64 { return r.value }
func (r *RSIState) Ready() bool { return r.count >= r.period }

// MACDState is EMA(fast) - EMA(slow) with an EMA(signal) smoothing line
// over the MACD series itself: the standard 12/26/9 configuration.
type MACDState struct {
	fast, slow, signal *EMAState
	macd, signalLine float64
}

func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACDState {
	return &MACDState{
		fast: NewEMA(fastPeriod),
		slow: NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACDState) Update(close float64) (macd, signal, histogram float64) {
	fast := m.fast.Update(close)
	slow := m.slow.Update(close)
	m.macd = fast - slow
	m.signalLine = m.signal.Update(m.macd)
	return m.macd, m.signalLine, m.macd - m.signalLine
}

// BollingerState is SMA(n) mid with upper/lower = mid +/- k*sigma, sigma
// the sample standard deviation over the window.
type BollingerState struct {
	sma *SMAState
	stddev *StdDevState
	k float64
}

func NewBollinger(period int, k float64) *BollingerState {
	return &BollingerState{sma: NewSMA(period), stddev: NewStdDev(period), k: k}
}

func (b *BollingerState) Update(close float64) (mid, upper, lower float64) {
	mid = b.sma.Update(close)
	sigma := b.stddev.Update(close)
	return mid, mid + b.k*sigma, mid - b.k*sigma
}

// ATRState is Wilder's Average True Range, updated from per-bar high/low/close.
type ATRState struct {
	period int
	prevClose float64
	primed bool
	value float64
	count int
}

func NewATR(period int) *ATRState {
	return &ATRState{period: period}
}

func (a *ATRState) Update(high, low, close float64) float64 {
	tr := high - low
	if a.primed {
		tr = math.Max(tr, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	}
	a.prevClose = close
	a.primed = true
	a.count++

	if a.count == 1 {
		a.value = tr
	} else if a.count <= a.period {
		a.value = (a.value*float64(a.count-1) + tr) / float64(a.count)
	} else {
		a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	}
	return a.value
}

// ReturnsState tracks simple period-over-period returns and a rolling
// volatility (stddev of returns).
type ReturnsState struct {
	prevClose float64
	primed bool
	vol *StdDevState
	lastReturn float64
}

func NewReturns(volWindow int) *ReturnsState {
	return &ReturnsState{vol: NewStdDev(volWindow)}
}

func (r *ReturnsState) Update(close float64) (ret, volatility float64) {
	if !r.primed {
		r.prevClose = close
		r.primed = true
		return 0, r.vol.Value()
	}
	if r.prevClose != 0 {
		r.lastReturn = (close - r.prevClose) / r.prevClose
	}
	r.prevClose = close
	volatility = r.vol.Update(r.lastReturn)
	return r.lastReturn, volatility
}

// SymbolIndicators is the per-symbol bundle of rolling indicator state
//: "multiple periods" of SMA/EMA, RSI(14), MACD(12/26/9),
// Bollinger Bands, ATR, returns and volatility — updated incrementally per
// bar close by ComputeFeatures, never recomputed over full history.
// EMA12 and EMA26 are built but not updated there; MACD keeps its own
// fast and slow EMAs.
type SymbolIndicators struct {
	SMA20 *SMAState
	SMA50 *SMAState
	EMA12 *EMAState
	EMA26 *EMAState
	RSI14 *RSIState
	MACD *MACDState
	BB *BollingerState
	ATR14 *ATRState
	Returns *ReturnsState

	lastSignalTs int64 // unix nanos of the last emitted signal's timestamp
}

// NewSymbolIndicators builds the standard indicator bundle for one symbol.
func NewSymbolIndicators() *SymbolIndicators {
	return &SymbolIndicators{
		SMA20: NewSMA(20),
		SMA50: NewSMA(50),
		EMA12: NewEMA(12),
		EMA26: NewEMA(26),
		RSI14: NewRSI(14),
		MACD: NewMACD(12, 26, 9),
		BB: NewBollinger(20, 2.0),
		ATR14: NewATR(14),
		Returns: NewReturns(20),
	}
}
