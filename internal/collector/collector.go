// Package collector runs the sequential fetch-persist loop: one request per
// year in ascending order, one artifact per downloaded year.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pyramids/internal/artifact"
	"pyramids/internal/model"
	"pyramids/internal/providers"
	"pyramids/internal/store"
)

// Policy decides what a failed year does to the rest of the run.
type Policy int

const (
	// AbortOnFailure stops the run at the first failed year.
	AbortOnFailure Policy = iota
	// ContinueOnFailure reports the failed year as not downloaded and moves on.
	ContinueOnFailure
)

type Recorder interface {
	ObserveYear(country string, result model.Result, start time.Time)
	ObserveRun(finished time.Time, err error)
}

type Summary struct {
	RunID      string
	Results    []model.Result
	Downloaded int
	Skipped    int
	Failed     int
}

func (s *Summary) add(result model.Result) {
	s.Results = append(s.Results, result)
	switch result.Outcome {
	case model.OutcomeDownloaded:
		s.Downloaded++
	case model.OutcomeSkipped:
		s.Skipped++
	case model.OutcomeFailed:
		s.Failed++
	}
}

type Collector struct {
	provider providers.Provider
	writer   *artifact.Writer
	store    store.Store
	recorder Recorder
	out      io.Writer
	logger   zerolog.Logger
	policy   Policy
	onResult func(model.Result)
	newRunID func() string
	now      func() time.Time
}

type Option func(*Collector)

func WithStore(st store.Store) Option {
	return func(c *Collector) {
		if st != nil {
			c.store = st
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(c *Collector) {
		c.recorder = recorder
	}
}

// WithOutput sets where the per-year notices are printed.
func WithOutput(out io.Writer) Option {
	return func(c *Collector) {
		if out != nil {
			c.out = out
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

func WithPolicy(policy Policy) Option {
	return func(c *Collector) {
		c.policy = policy
	}
}

func WithResultHook(hook func(model.Result)) Option {
	return func(c *Collector) {
		c.onResult = hook
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func WithRunID(newRunID func() string) Option {
	return func(c *Collector) {
		if newRunID != nil {
			c.newRunID = newRunID
		}
	}
}

func New(provider providers.Provider, writer *artifact.Writer, opts ...Option) (*Collector, error) {
	if provider == nil {
		return nil, errors.New("collector: provider is required")
	}
	if writer == nil {
		return nil, errors.New("collector: artifact writer is required")
	}
	c := &Collector{
		provider: provider,
		writer:   writer,
		store:    &store.NopStore{},
		out:      io.Discard,
		logger:   zerolog.Nop(),
		policy:   AbortOnFailure,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run visits every year of years in ascending order. Non-200 responses are
// reported and skipped. A failed year ends the run with its error under
// AbortOnFailure; under ContinueOnFailure it is counted and the run goes on.
// Ledger failures always end the run.
func (c *Collector) Run(ctx context.Context, target model.Target, years model.YearRange) (Summary, error) {
	if err := target.Validate(); err != nil {
		return Summary{}, err
	}
	if err := years.Validate(); err != nil {
		return Summary{}, err
	}

	run := model.Run{
		ID:        c.newRunID(),
		Country:   target.Country,
		Code:      target.Code,
		FromYear:  years.From,
		ToYear:    years.To,
		StartedAt: c.now(),
	}
	logger := c.logger.With().
		Str("run_id", run.ID).
		Str("country", target.Country).
		Int("code", target.Code).
		Logger()

	if err := c.store.BeginRun(ctx, run); err != nil {
		return Summary{}, fmt.Errorf("begin run: %w", err)
	}
	logger.Info().Stringer("years", years).Str("provider", c.provider.Name()).Msg("collector run started")

	summary := Summary{RunID: run.ID, Results: make([]model.Result, 0, years.Len())}
	var runErr error
	for _, year := range years.Years() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		start := c.now()
		result := c.collectYear(ctx, target, year)
		summary.add(result)

		if err := c.store.RecordDownload(ctx, toDownload(run, year, result, c.now())); err != nil {
			runErr = fmt.Errorf("record %s %d: %w", target.Country, year, err)
			break
		}
		if c.recorder != nil {
			c.recorder.ObserveYear(target.Country, result, start)
		}
		if c.onResult != nil {
			c.onResult(result)
		}

		switch result.Outcome {
		case model.OutcomeDownloaded:
			logger.Debug().Int("year", year).Str("path", result.Path).Int("rows", result.Rows).Msg("artifact written")
			fmt.Fprintf(c.out, "%s %d downloaded\n", target.Country, year)
		case model.OutcomeSkipped:
			logger.Debug().Int("year", year).Int("status", result.StatusCode).Msg("year skipped")
			fmt.Fprintf(c.out, "%s %d NOT downloaded\n", target.Country, year)
		case model.OutcomeFailed:
			logger.Error().Err(result.Err).Int("year", year).Msg("year failed")
			if c.policy == ContinueOnFailure {
				fmt.Fprintf(c.out, "%s %d NOT downloaded\n", target.Country, year)
				continue
			}
			runErr = fmt.Errorf("%s %d: %w", target.Country, year, result.Err)
		}
		if runErr != nil {
			break
		}
	}

	run.FinishedAt = c.now()
	run.Downloaded = summary.Downloaded
	run.Skipped = summary.Skipped
	run.Failed = summary.Failed
	if err := c.store.FinishRun(context.WithoutCancel(ctx), run); err != nil && runErr == nil {
		runErr = fmt.Errorf("finish run: %w", err)
	}
	if c.recorder != nil {
		c.recorder.ObserveRun(run.FinishedAt, runErr)
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.
		Int("downloaded", summary.Downloaded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("collector run finished")

	return summary, runErr
}

func (c *Collector) collectYear(ctx context.Context, target model.Target, year int) model.Result {
	result := model.Result{Year: year}

	body, err := c.provider.FetchYear(ctx, target.Code, year)
	if err != nil {
		var statusErr *providers.StatusError
		switch {
		case errors.As(err, &statusErr):
			result.Outcome = model.OutcomeSkipped
			result.StatusCode = statusErr.StatusCode
		case errors.Is(err, providers.ErrNotDownloaded):
			result.Outcome = model.OutcomeSkipped
		default:
			result.Outcome = model.OutcomeFailed
			result.Err = err
		}
		return result
	}
	result.StatusCode = http.StatusOK

	rows, err := artifact.Rows(body)
	if err != nil {
		result.Outcome = model.OutcomeFailed
		result.Err = err
		return result
	}

	path, n, err := c.writer.Write(target.Country, year, rows)
	if err != nil {
		result.Outcome = model.OutcomeFailed
		result.Err = err
		return result
	}

	result.Outcome = model.OutcomeDownloaded
	result.Path = path
	result.Bytes = n
	result.Rows = len(rows)
	return result
}

func toDownload(run model.Run, year int, result model.Result, fetchedAt time.Time) model.Download {
	download := model.Download{
		RunID:      run.ID,
		Country:    run.Country,
		Code:       run.Code,
		Year:       year,
		Outcome:    result.Outcome,
		StatusCode: result.StatusCode,
		Path:       result.Path,
		Bytes:      result.Bytes,
		Rows:       result.Rows,
		FetchedAt:  fetchedAt,
	}
	if result.Err != nil {
		download.Error = result.Err.Error()
	}
	return download
}
