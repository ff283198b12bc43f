package spotprice

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidWindow is returned if the window start is not before its end
	ErrInvalidWindow = errors.New("invalid window: start must be before end")
	// ErrNoPriceData is returned if there are no price events to integrate over
	ErrNoPriceData = errors.New("insufficient data: no spot price history for window")
	// ErrMalformedPrice is returned if a price history record can't be converted to a PriceEvent
	ErrMalformedPrice = errors.New("malformed spot price")
)

// PriceEvent is a spot price that became effective at Timestamp and stayed in effect until the next
// later event
type PriceEvent struct {
	// Timestamp is when the price became effective
	Timestamp time.Time
	// Price is the price in USD per hour
	Price float64
}

// Window is the [Start, End) interval to estimate cost over
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate returns ErrInvalidWindow unless Start is before End
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window start and end are required: %w", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("start %v is not before end %v: %w", w.Start, w.End, ErrInvalidWindow)
	}
	return nil
}

// Duration is the length of the window
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Segment is the part of the window billed at a single price
type Segment struct {
	Start time.Time
	End   time.Time
	Price float64
	Cost  float64
}

// Result is the cost of a window
type Result struct {
	AverageHourlyCost float64
	TotalCost         float64
	TotalHours        float64
	// CoveredSeconds is how much of the window the price events accounted for. It is less than
	// TotalHours*3600 when the history starts after the window does.
	CoveredSeconds float64
	Segments       []Segment
}

// Uncovered returns the part of the window no price event accounted for
func (r *Result) Uncovered() time.Duration {
	total := time.Duration(r.TotalHours * float64(time.Hour))
	covered := time.Duration(r.CoveredSeconds * float64(time.Second))
	if covered >= total {
		return 0
	}
	return total - covered
}

// Integrate computes the cost of running over window given a piecewise constant price history.
// Time in the window that no event covers is not billed.
func Integrate(events []PriceEvent, window Window) (*Result, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoPriceData
	}

	sorted := make([]PriceEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	total := window.Duration()
	var computed time.Duration
	var totalCost float64
	var segments []Segment
	last := window.End

	for _, event := range sorted {
		if computed == total {
			break
		}

		available := last.Sub(event.Timestamp)
		if available < 0 {
			available = 0
		}
		remaining := total - computed
		used := available
		if remaining < used {
			used = remaining
		}

		if used > 0 {
			cost := (event.Price / 3600) * used.Seconds()
			totalCost += cost
			segments = append(segments, Segment{
				Start: last.Add(-used),
				End:   last,
				Price: event.Price,
				Cost:  cost,
			})
		}
		computed += used

		if event.Timestamp.Before(last) {
			last = event.Timestamp
		}
	}

	totalHours := total.Hours()
	return &Result{
		AverageHourlyCost: totalCost / totalHours,
		TotalCost:         totalCost,
		TotalHours:        totalHours,
		CoveredSeconds:    computed.Seconds(),
		Segments:          segments,
	}, nil
}
