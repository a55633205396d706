package availability

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusAvailable       Status = "available"
	StatusPartiallyBooked Status = "partially_booked"
	StatusMostlyBooked    Status = "mostly_booked"
	StatusFullyBooked     Status = "fully_booked"
	StatusUnavailable     Status = "unavailable"
)

// Threshold maps an available percentage to a status. With Inclusive the
// row matches pct >= MinPercentage, otherwise pct > MinPercentage.
type Threshold struct {
	Status        Status
	MinPercentage float64
	Inclusive     bool
}

// Policy classifies a day. Rows are tried in order; Fallback applies when
// none matches. A day with no sessions is always StatusUnavailable.
type Policy struct {
	Thresholds []Threshold
	Fallback   Status
}

// DefaultPolicy: 100% free is available, at least half free is partially
// booked, anything free is mostly booked, nothing free is fully booked.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: []Threshold{
			{Status: StatusAvailable, MinPercentage: 100, Inclusive: true},
			{Status: StatusPartiallyBooked, MinPercentage: 50, Inclusive: true},
			{Status: StatusMostlyBooked, MinPercentage: 0, Inclusive: false},
		},
		Fallback: StatusFullyBooked,
	}
}

func (p Policy) Classify(total int, availablePct float64) Status {
	if total == 0 {
		return StatusUnavailable
	}
	for _, th := range p.Thresholds {
		if th.Inclusive && availablePct >= th.MinPercentage {
			return th.Status
		}
		if !th.Inclusive && availablePct > th.MinPercentage {
			return th.Status
		}
	}
	return p.Fallback
}

// Validate requires strictly descending thresholds within 0..100 and a fallback.
func (p Policy) Validate() error {
	if p.Fallback == "" {
		return errors.New("availability policy: fallback status required")
	}
	for i, th := range p.Thresholds {
		if th.MinPercentage < 0 || th.MinPercentage > 100 {
			return fmt.Errorf("availability policy: threshold %q out of range: %v", th.Status, th.MinPercentage)
		}
		if i > 0 && th.MinPercentage >= p.Thresholds[i-1].MinPercentage {
			return fmt.Errorf("availability policy: thresholds must descend (%q after %q)", th.Status, p.Thresholds[i-1].Status)
		}
	}
	return nil
}
