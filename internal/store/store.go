package store

import (
	"context"

	"pyramids/internal/model"
)

// Store is the run ledger. It only records what happened; the collector
// never reads it back to decide which years to fetch.
type Store interface {
	BeginRun(ctx context.Context, run model.Run) error
	RecordDownload(ctx context.Context, download model.Download) error
	FinishRun(ctx context.Context, run model.Run) error
	ListDownloads(ctx context.Context, country string) ([]model.Download, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) BeginRun(ctx context.Context, run model.Run) error {
	_ = ctx
	_ = run
	return nil
}

func (s *NopStore) RecordDownload(ctx context.Context, download model.Download) error {
	_ = ctx
	_ = download
	return nil
}

func (s *NopStore) FinishRun(ctx context.Context, run model.Run) error {
	_ = ctx
	_ = run
	return nil
}

func (s *NopStore) ListDownloads(ctx context.Context, country string) ([]model.Download, error) {
	_ = ctx
	_ = country
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
