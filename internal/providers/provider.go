package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotDownloaded is matched by every StatusError.
var ErrNotDownloaded = errors.New("dataset not downloaded")

// StatusError reports a response whose status was not 200. It is an expected
// outcome, not a transport failure.
type StatusError struct {
	Provider   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Provider, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotDownloaded
}

type Provider interface {
	Name() string
	FetchYear(ctx context.Context, code, year int) ([]byte, error)
}
