package model

import (
	"fmt"
	"time"
)

type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

type Target struct {
	Country string
	Code    int
}

func (t Target) Validate() error {
	if t.Country == "" {
		return fmt.Errorf("country is required")
	}
	if t.Code <= 0 {
		return fmt.Errorf("country code must be positive, got %d", t.Code)
	}
	return nil
}

// YearRange is inclusive of From and exclusive of To.
type YearRange struct {
	From int
	To   int
}

func (r YearRange) Validate() error {
	if r.To < r.From {
		return fmt.Errorf("invalid year range [%d, %d)", r.From, r.To)
	}
	return nil
}

func (r YearRange) Len() int {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

func (r YearRange) Years() []int {
	years := make([]int, 0, r.Len())
	for year := r.From; year < r.To; year++ {
		years = append(years, year)
	}
	return years
}

func (r YearRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.From, r.To)
}

type Result struct {
	Year       int
	Outcome    Outcome
	StatusCode int
	Path       string
	Bytes      int
	Rows       int
	Err        error
}

type Download struct {
	RunID      string
	Country    string
	Code       int
	Year       int
	Outcome    Outcome
	StatusCode int
	Path       string
	Bytes      int
	Rows       int
	Error      string
	FetchedAt  time.Time
}

type Run struct {
	ID         string
	Country    string
	Code       int
	FromYear   int
	ToYear     int
	StartedAt  time.Time
	FinishedAt time.Time
	Downloaded int
	Skipped    int
	Failed     int
}
