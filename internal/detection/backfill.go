package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// SweepReport summarizes one backfill sweep.
type SweepReport struct {
	Category    string   `json:"category"`
	Population  int      `json:"population"`
	Unprocessed int      `json:"unprocessed"`
	Negative    int      `json:"negative"`
	Stranded    int      `json:"stranded"`
	Dispatched  int      `json:"dispatched"`
	Failed      []string `json:"failed,omitempty"`
}

// ProgressFunc is called after each clip a sweep handles.
type ProgressFunc func(done, total int)

// Sweeper re-derives the work still owed for a clip population and submits
// it through the dispatcher.
type Sweeper struct {
	catalog Catalog
	ledger  Ledger
	submit  Submitter
	inputs  InputTemplate
	opts    options
}

func NewSweeper(catalog Catalog, ledger Ledger, submit Submitter, inputs InputTemplate, opts ...Option) *Sweeper {
	return &Sweeper{catalog: catalog, ledger: ledger, submit: submit, inputs: inputs, opts: buildOptions(opts)}
}

// Category checks that category exists and returns its population.
func (s *Sweeper) Category(ctx context.Context, category string) ([]Clip, error) {
	return s.catalog.ClipsInCategory(ctx, category)
}

// Sweep submits every clip of category that has no record, and every clip
// whose record completed with the sentinel classification. The latter are
// deleted first so they restart from not started through the same path as a
// first submission. Records left at not started by an interrupted sweep are
// dispatched again without re-insertion.
//
// Only records of clips in category are considered, so a sweep never
// touches another category's negative or stranded records.
//
// The sweep is not transactional. Re-running it recomputes both sets, so an
// interrupted sweep resumes without double-submitting clips already in
// progress or completed with a real classification. Overlapping sweeps of
// the same category are safe: the delete only removes records still negative
// at delete time, creation loses to an existing record, and a stranded record
// is re-read before it is dispatched.
func (s *Sweeper) Sweep(ctx context.Context, category string, progress ProgressFunc) (SweepReport, error) {
	rep := SweepReport{Category: category}
	clips, err := s.catalog.ClipsInCategory(ctx, category)
	if err != nil {
		return rep, err
	}
	records, err := s.ledger.ListAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("list detection records: %w", err)
	}
	rep.Population = len(clips)

	population := make(map[string]Clip, len(clips))
	for _, c := range clips {
		population[c.ID] = c
	}
	byClip := make(map[string]Record, len(records))
	for _, r := range records {
		byClip[r.ClipID] = r
	}

	var unprocessed, negative, stranded []string
	for id := range population {
		rec, ok := byClip[id]
		switch {
		case !ok:
			unprocessed = append(unprocessed, id)
		case rec.NegativeCompleted():
			negative = append(negative, id)
		case rec.Status == StatusNotStarted:
			stranded = append(stranded, id)
		}
	}
	sort.Strings(unprocessed)
	sort.Strings(negative)
	sort.Strings(stranded)
	rep.Unprocessed, rep.Stranded = len(unprocessed), len(stranded)

	if len(negative) > 0 {
		deleted, err := s.ledger.DeleteNegative(ctx, negative)
		if err != nil {
			return rep, fmt.Errorf("delete negative records: %w", err)
		}
		s.opts.logger.Info("cleared negative detection records",
			"category", category,
			"deleted", len(deleted),
			"changed_since_listing", len(negative)-len(deleted),
		)
		negative = deleted
	}
	rep.Negative = len(negative)

	toCreate := append(append([]string{}, unprocessed...), negative...)
	sort.Strings(toCreate)
	total := len(toCreate) + len(stranded)
	done := 0
	step := func(clipID string, create bool) {
		sent, err := s.resubmit(ctx, population[clipID], create)
		switch {
		case err != nil:
			rep.Failed = append(rep.Failed, clipID)
			s.opts.logger.Error("backfill submission failed",
				"category", category,
				"clip_id", clipID,
				"error", err,
			)
		case sent:
			rep.Dispatched++
		}
		done++
		if progress != nil {
			progress(done, total)
		}
	}
	for _, id := range toCreate {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		step(id, true)
	}
	for _, id := range stranded {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		step(id, false)
	}

	s.opts.metrics.RecordBackfill("unprocessed", len(unprocessed))
	s.opts.metrics.RecordBackfill("negative", len(negative))
	s.opts.metrics.RecordBackfill("stranded", len(stranded))
	s.opts.metrics.RecordBackfill("failed", len(rep.Failed))
	s.opts.logger.Info("backfill sweep finished",
		"category", category,
		"population", rep.Population,
		"unprocessed", rep.Unprocessed,
		"negative", rep.Negative,
		"stranded", rep.Stranded,
		"dispatched", rep.Dispatched,
		"failed", len(rep.Failed),
	)
	return rep, nil
}

func (s *Sweeper) resubmit(ctx context.Context, clip Clip, create bool) (bool, error) {
	if create {
		if err := s.ledger.Create(ctx, clip.ID); err != nil {
			if errors.Is(err, ErrRecordExists) {
				// another submitter got there between listing and now
				return false, nil
			}
			return false, err
		}
	} else {
		rec, err := s.ledger.Get(ctx, clip.ID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		if rec.Status != StatusNotStarted {
			return false, nil
		}
	}
	if _, err := s.submit.Dispatch(ctx, clip.ID, s.inputs.Refs(clip.VideoID)); err != nil {
		return false, err
	}
	return true, nil
}
