package importer

import (
	"context"
	"time"
)

type Clock interface {
	CurrentTime(ctx context.Context) (time.Time, error)
}

type StaleEmployeeStore interface {
	Clock
	DeactivateEmployeesNotUpdatedSince(ctx context.Context, t0 time.Time) (int64, error)
}

// StalenessDeactivator implements the mark-and-sweep step of an employee run:
// Mark records the store time before the first write, Sweep deactivates every
// active employee not written since.
type StalenessDeactivator struct {
	Store StaleEmployeeStore

	t0     time.Time
	marked bool
}

func (d *StalenessDeactivator) Mark(ctx context.Context) error {
	t0, err := d.Store.CurrentTime(ctx)
	if err != nil {
		return &StoreWriteError{Dataset: DatasetEmployee, Op: "capture reference time", Err: err}
	}
	d.t0 = t0
	d.marked = true
	return nil
}

// ReferenceTime is the watermark captured by Mark.
func (d *StalenessDeactivator) ReferenceTime() (time.Time, bool) {
	return d.t0, d.marked
}

func (d *StalenessDeactivator) Sweep(ctx context.Context) (int64, error) {
	if !d.marked {
		return 0, &StoreWriteError{Dataset: DatasetEmployee, Op: "deactivate stale employees", Err: ErrNotMarked}
	}
	n, err := d.Store.DeactivateEmployeesNotUpdatedSince(ctx, d.t0)
	if err != nil {
		return 0, &StoreWriteError{Dataset: DatasetEmployee, Op: "deactivate stale employees", Err: err}
	}
	return n, nil
}
