// Package export filters, pages and writes the canonical ledger and gain lots.
package export

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// PageSize ledger rows per page.
const PageSize = 10

// ErrPageOutOfRange requested page does not exist.
var ErrPageOutOfRange = errors.New("page out of range")

// Order ledger sort order by date.
type Order string

const (
	NewestFirst Order = "desc"
	OldestFirst Order = "asc"
)

// ParseOrder accepts desc/newest and asc/oldest; empty means newest first.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "newest":
		return NewestFirst, nil
	case "asc", "oldest":
		return OldestFirst, nil
	default:
		return "", errors.Errorf("unknown order %q", s)
	}
}

// Filter ledger view selection. Zero values select everything.
type Filter struct {
	Asset     domain.Asset
	Direction domain.Direction
	Order     Order
}

// ParseFilter builds a filter from user input; "all" and empty select everything.
func ParseFilter(asset, direction, order string) (Filter, error) {
	var (
		f   Filter
		err error
	)
	if a := strings.TrimSpace(asset); a != "" && !strings.EqualFold(a, "all") {
		if f.Asset, err = domain.ParseAsset(a); err != nil {
			return Filter{}, err
		}
	}
	if d := strings.TrimSpace(direction); d != "" && !strings.EqualFold(d, "all") {
		if f.Direction, err = domain.ParseDirection(d); err != nil {
			return Filter{}, err
		}
	}
	if f.Order, err = ParseOrder(order); err != nil {
		return Filter{}, err
	}

	return f, nil
}

// Apply returns the matching entries in the filter's order. The input is not modified.
func Apply(ledger domain.Ledger, f Filter) domain.Ledger {
	out := make(domain.Ledger, 0, len(ledger))
	for _, e := range ledger {
		if f.Asset != "" && e.Asset != f.Asset {
			continue
		}
		if f.Direction != "" && e.Direction != f.Direction {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if f.Order == OldestFirst {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Time.After(out[j].Time)
	})

	return out
}

// Page one page of ledger rows.
type Page struct {
	Rows  domain.Ledger `json:"rows"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Total int           `json:"total"`
}

// Paginate returns page n (1-based) of rows. An empty ledger has a single empty page.
func Paginate(rows domain.Ledger, n int) (Page, error) {
	pages := (len(rows) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	if n < 1 || n > pages {
		return Page{}, errors.Wrapf(ErrPageOutOfRange, "page %d of %d", n, pages)
	}

	start := (n - 1) * PageSize
	end := min(start+PageSize, len(rows))

	return Page{Rows: rows[start:end], Page: n, Pages: pages, Total: len(rows)}, nil
}
