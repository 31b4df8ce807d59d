package history

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Points number of points in every series.
const Points = 6

// Window chart time span.
type Window string

const (
	WindowAll Window = "ALL"
	Window3Y  Window = "3Y"
	Window1Y  Window = "1Y"
	Window3M  Window = "3M"
	Window1M  Window = "1M"
	Window5D  Window = "5D"
)

// Windows lists every window in display order.
var Windows = []Window{WindowAll, Window3Y, Window1Y, Window3M, Window1M, Window5D}

var windowSpans = map[Window]time.Duration{
	Window3Y: 94_608_000_000 * time.Millisecond,
	Window1Y: 31_536_000_000 * time.Millisecond,
	Window3M: 7_776_000_000 * time.Millisecond,
	Window1M: 2_592_000_000 * time.Millisecond,
	Window5D: 432_000_000 * time.Millisecond,
}

// ParseWindow parses a window name, case-insensitive. "entire" and "max" are accepted for ALL.
func ParseWindow(s string) (Window, error) {
	w := Window(strings.ToUpper(strings.TrimSpace(s)))
	switch w {
	case "", "ENTIRE", "MAX":
		return WindowAll, nil
	case WindowAll:
		return w, nil
	}
	if _, ok := windowSpans[w]; ok {
		return w, nil
	}

	return "", errors.Errorf("unknown window %q", s)
}

// Span fixed duration of the window. ok is false for ALL, whose span depends on the ledger.
func (w Window) Span() (span time.Duration, ok bool) {
	span, ok = windowSpans[w]
	return span, ok
}

// Point one sample of the total portfolio value.
type Point struct {
	At    time.Time       `json:"at"`
	Total decimal.Decimal `json:"total"`
	// Degraded some asset could not be valued and is missing from Total.
	Degraded bool `json:"degraded"`
	// Missing assets excluded from Total.
	Missing []domain.Asset `json:"missing,omitempty"`
	// Insufficient assets whose reconstructed holdings went negative.
	Insufficient []domain.Asset `json:"insufficient,omitempty"`
	// Current the point reuses the current snapshot.
	Current bool `json:"current"`
}

// Series chart-ready samples, oldest first.
type Series struct {
	Window Window  `json:"window"`
	Points []Point `json:"points"`
}

// Degraded reports whether any point is degraded.
func (s Series) Degraded() bool {
	for _, p := range s.Points {
		if p.Degraded || len(p.Insufficient) > 0 {
			return true
		}
	}

	return false
}

// Change difference between the current total and the total 24 hours earlier.
type Change struct {
	Current decimal.Decimal `json:"current"`
	Past    decimal.Decimal `json:"past"`
	Abs     decimal.Decimal `json:"abs"`
	// Percent zero when the past total is not positive.
	Percent  decimal.Decimal `json:"percent"`
	Degraded bool            `json:"degraded"`
}

// Sampler samples the total portfolio value over time for one reconciliation run.
type Sampler struct {
	l       *zap.Logger
	snap    domain.Snapshot
	entries domain.Ledger
	prices  domain.PriceBook
}

// NewSampler creates a Sampler over the run's current snapshot, ledger and prices.
func NewSampler(l *zap.Logger, snap domain.Snapshot, entries domain.Ledger, prices domain.PriceBook) *Sampler {
	return &Sampler{l: l, snap: snap, entries: entries, prices: prices}
}

// Series samples Points values evenly spaced between the window's lower bound and now. The last point is the
// current snapshot total. For ALL the lower bound is the earliest ledger entry; with an empty ledger the series has
// a single point.
func (s *Sampler) Series(w Window, now time.Time) (Series, error) {
	var lower time.Time
	if span, ok := w.Span(); ok {
		lower = now.Add(-span)
	} else if w == WindowAll {
		earliest, ok := s.entries.Earliest()
		if !ok || !earliest.Before(now) {
			return Series{Window: w, Points: []Point{s.current(now)}}, nil
		}
		lower = earliest
	} else {
		return Series{}, errors.Errorf("unknown window %q", w)
	}

	span := now.Sub(lower)
	points := make([]Point, 0, Points)
	for i := 0; i < Points-1; i++ {
		at := lower.Add(time.Duration(int64(span) / int64(Points-1) * int64(i)))
		points = append(points, s.total(at))
	}
	points = append(points, s.current(now))

	series := Series{Window: w, Points: points}
	if series.Degraded() {
		s.l.Warn("series has degraded points", zap.String("window", string(w)))
	}

	return series, nil
}

// Change24h compares the current total with the reconstructed total 24 hours before now. Only assets valued at
// both ends are compared; any other held asset marks the change degraded.
func (s *Sampler) Change24h(now time.Time) (Change, error) {
	pastValues, past := s.values(now.Add(-24 * time.Hour))
	if len(past.Missing) == len(domain.Assets) {
		return Change{}, errors.Wrap(domain.ErrPriceMissing, "no asset could be valued 24h ago")
	}

	c := Change{Current: decimal.Zero, Past: decimal.Zero, Percent: decimal.Zero, Degraded: past.Degraded}
	for _, asset := range domain.Assets {
		b := s.snap.Get(asset)
		pastValue, ok := pastValues[asset]
		if !b.Priced || !ok {
			c.Degraded = true
			continue
		}
		c.Current = c.Current.Add(b.Fiat)
		c.Past = c.Past.Add(pastValue)
	}
	c.Abs = c.Current.Sub(c.Past)
	if c.Past.IsPositive() {
		c.Percent = c.Abs.Div(c.Past).Mul(decimal.NewFromInt(100))
	}

	return c, nil
}

// current reuses the snapshot total. Held assets without today's price are reported missing.
func (s *Sampler) current(now time.Time) Point {
	p := Point{At: now, Total: s.snap.Total(), Current: true}
	if missing := s.snap.Unpriced(); len(missing) > 0 {
		p.Degraded = true
		p.Missing = missing
	}

	return p
}

// total sums BalanceAt over all assets. Assets holding nothing at the time need no price.
func (s *Sampler) total(at time.Time) Point {
	_, p := s.values(at)
	return p
}

// values values every asset at the time. Missing assets are absent from the map.
func (s *Sampler) values(at time.Time) (map[domain.Asset]decimal.Decimal, Point) {
	p := Point{At: at, Total: decimal.Zero}
	values := make(map[domain.Asset]decimal.Decimal, len(domain.Assets))

	for _, asset := range domain.Assets {
		base, _ := QuantityAt(asset, at, s.snap, s.entries)
		if base.IsZero() {
			values[asset] = decimal.Zero
			continue
		}

		v, err := BalanceAt(asset, at, s.snap, s.entries, s.prices)
		if err != nil {
			s.l.Debug("asset excluded from point",
				zap.String("asset", asset.String()),
				zap.Time("at", at),
				zap.Error(err))
			p.Degraded = true
			p.Missing = append(p.Missing, asset)
			continue
		}
		if v.Insufficient {
			p.Insufficient = append(p.Insufficient, asset)
		}
		values[asset] = v.Fiat
		p.Total = p.Total.Add(v.Fiat)
	}

	return values, p
}
