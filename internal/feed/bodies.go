package feed

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
)

// BodiesOutcome summarizes a body load.
type BodiesOutcome struct {
	Requests int
	Failed   int
}

// LoadBodies fetches the full body of every note matching filter. With a
// nil filter and every body already present it returns without a request.
func (p *Pipeline) LoadBodies(ctx context.Context, filter func(model.Note) bool) (BodiesOutcome, error) {
	if filter == nil && p.store.AllBodiesLoaded() {
		return BodiesOutcome{}, nil
	}
	return p.LoadBodyIDs(ctx, p.store.IDs(filter))
}

// LoadBodyIDs fetches bodies in batches of the configured size, one
// concurrent request per batch, merging each batch as it arrives. It
// returns once every batch has settled; a failed batch is logged and
// skipped rather than failing the load.
func (p *Pipeline) LoadBodyIDs(ctx context.Context, ids []model.NoteID) (BodiesOutcome, error) {
	if len(ids) == 0 {
		return BodiesOutcome{}, ErrNothingToLoad
	}

	batches := chunk(ids, p.opts.BodyBatchSize)
	var failed atomic.Int32
	var g errgroup.Group

	for _, batch := range batches {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()

			page, err := p.api.GetNotes(reqCtx, source.NotesQuery{
				Fields: FieldsBodies,
				IDs:    batch,
			})
			if err != nil {
				failed.Add(1)
				p.log.WithError(err).WithField("ids", batch).Error("body loading error")
				return nil
			}
			p.store.Merge(page.Notes, "")
			return nil
		})
	}
	_ = g.Wait()

	out := BodiesOutcome{Requests: len(batches), Failed: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// chunk splits ids into consecutive slices of at most size elements.
func chunk(ids []model.NoteID, size int) [][]model.NoteID {
	if size <= 0 {
		size = defaultBodyBatchSize
	}
	var out [][]model.NoteID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
