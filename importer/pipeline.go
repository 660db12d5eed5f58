package importer

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// PhaseStats counts what one dataset phase did.
type PhaseStats struct {
	RowsRead      int
	RowsWritten   int
	Batches       int
	OrgsCorrected int
	Deactivated   int64
}

// pipeline is the read-and-flush loop shared by both datasets.
// before runs once ahead of the first write, after once behind the last one.
type pipeline[T any] struct {
	schema    Schema
	batchSize int
	convert   func(Row) T
	before    func(ctx context.Context) error
	prepare   func(ctx context.Context, batch Batch[T]) (Batch[T], error)
	write     func(ctx context.Context, batch Batch[T]) (int, error)
	after     func(ctx context.Context) error
	log       *logrus.Entry
	stats     *PhaseStats
}

func (p pipeline[T]) run(ctx context.Context, r io.Reader) error {
	dec, err := NewDecoder(r, p.schema)
	if err != nil {
		return err
	}
	if p.before != nil {
		if err := p.before(ctx); err != nil {
			return err
		}
	}

	acc := NewAccumulator[T](p.batchSize)
	for {
		row, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		p.stats.RowsRead++
		if acc.Add(p.convert(row)) {
			if err := p.flush(ctx, acc.Drain()); err != nil {
				return err
			}
			p.log.Infof("%s upsert complete. Rows sent to DB: %d", p.schema.Dataset.Tag(), p.stats.RowsWritten)
		}
	}
	if batch, ok := acc.Remainder(); ok {
		if err := p.flush(ctx, batch); err != nil {
			return err
		}
	}
	p.log.WithFields(logrus.Fields{
		"rows_read": p.stats.RowsRead,
		"batches":   p.stats.Batches,
	}).Infof("%s final upsert complete. Rows sent to DB: %d", p.schema.Dataset.Tag(), p.stats.RowsWritten)

	if p.after != nil {
		return p.after(ctx)
	}
	return nil
}

func (p pipeline[T]) flush(ctx context.Context, batch Batch[T]) error {
	if p.prepare != nil {
		var err error
		if batch, err = p.prepare(ctx, batch); err != nil {
			return err
		}
	}
	n, err := p.write(ctx, batch)
	if err != nil {
		return err
	}
	p.stats.Batches++
	p.stats.RowsWritten += n
	return nil
}
