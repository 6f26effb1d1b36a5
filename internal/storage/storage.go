package storage

import (
	"context"

	"taostats/internal/model"
)

// Journal records transaction outcomes and pool readings.
type Journal interface {
	Record(ctx context.Context, rec model.OutcomeRecord) error
	PutPoolSnapshots(ctx context.Context, snaps []model.PoolSnapshotRecord) error
}

// Multi fans records out to every journal, returning the first error.
type Multi []Journal

func (m Multi) Record(ctx context.Context, rec model.OutcomeRecord) error {
	var first error
	for _, j := range m {
		if err := j.Record(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) PutPoolSnapshots(ctx context.Context, snaps []model.PoolSnapshotRecord) error {
	var first error
	for _, j := range m {
		if err := j.PutPoolSnapshots(ctx, snaps); err != nil && first == nil {
			first = err
		}
	}
	return first
}
