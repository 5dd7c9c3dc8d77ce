package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vigil/idgen"
	"github.com/hazyhaar/vigil/jobq"
	"github.com/hazyhaar/vigil/monitor/internal/diff"
	"github.com/hazyhaar/vigil/monitor/internal/fetch"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// runCheck executes one claimed check job end to end: fetch, canonicalize,
// compare, persist, finalize. It owns the job's final state.
func (s *Service) runCheck(ctx context.Context, job *jobq.Job) {
	log := s.logger.With("job", job.ID, "target", job.TargetID, "attempt", job.Attempts)

	target, err := s.store.GetTarget(ctx, job.TargetID)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("load target: %v", err), log)
		return
	}
	if target == nil || !target.Active {
		// Deleted or paused after the job was queued.
		if err := s.queue.Complete(ctx, job.ID); err != nil {
			log.Debug("check: complete stale job", "error", err)
		}
		return
	}

	fetcher, err := s.fetchers.For(target.Type)
	if err != nil {
		s.exhaustJob(ctx, job, err.Error(), log)
		return
	}
	canonFn, err := s.canon.For(target.Type)
	if err != nil {
		s.exhaustJob(ctx, job, err.Error(), log)
		return
	}

	res, err := fetcher.Fetch(ctx, target.URL)
	if err != nil {
		s.handleFetchError(ctx, job, target, err, log)
		return
	}

	canonical, err := canonFn(res.Body)
	if err != nil {
		// Unparseable content is retryable: transient half-rendered pages
		// resolve themselves.
		s.failJob(ctx, job, fmt.Sprintf("canonicalize: %v", err), log)
		return
	}

	if target.NotFoundCount > 0 {
		if err := s.store.ResetNotFound(ctx, target.ID); err != nil {
			log.Warn("check: reset not-found counter", "error", err)
		}
	}

	change, err := s.observe(ctx, target, res.Title, canonical)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("persist observation: %v", err), log)
		return
	}

	if err := s.store.TouchChecked(ctx, target.ID, time.Now()); err != nil {
		log.Warn("check: touch last_checked_at", "error", err)
	}
	if err := s.queue.Complete(ctx, job.ID); err != nil {
		if errors.Is(err, jobq.ErrNotRunning) {
			log.Warn("check: lease lost before completion")
			return
		}
		log.Error("check: complete job", "error", err)
		return
	}

	if change != nil {
		log.Info("check: change detected", "change", change.ID,
			"from_seq", change.FromSeq, "to_seq", change.ToSeq)
		// Best effort: a failed drive leaves the change for the redrive loop.
		if err := s.pipe.Drive(ctx, change.ID); err != nil {
			log.Warn("check: pipeline drive failed, leaving for redrive", "error", err)
		}
	} else {
		log.Debug("check: no change")
	}
}

// observe compares canonical content against the head snapshot and persists
// what it finds. Returns the Change that still needs driving, or nil.
//
// The write order is snapshot first, change second. A crash in between is
// healed on the next check: the refetched content hashes equal to the
// orphaned head snapshot, and the missing change record is reconstructed
// from the stored snapshots without appending anything new.
func (s *Service) observe(ctx context.Context, target *store.Target, title, canonical string) (*store.Change, error) {
	hash := diff.Hash(canonical)

	head, err := s.store.HeadSnapshot(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	if head == nil {
		// First observation is the baseline, never a change.
		return nil, s.store.InsertSnapshot(ctx, &store.Snapshot{
			ID:               idgen.Snapshot(),
			TargetID:         target.ID,
			Seq:              1,
			Title:            title,
			CanonicalContent: canonical,
			ContentHash:      hash,
		})
	}

	if head.ContentHash == hash {
		if head.Seq == 1 {
			return nil, nil
		}
		existing, err := s.store.GetChangeForSeq(ctx, target.ID, head.Seq)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, nil
		}
		// Orphaned head snapshot: reconstruct its change record.
		prev, err := s.store.GetSnapshot(ctx, target.ID, head.Seq-1)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, fmt.Errorf("snapshot %d missing for target %s", head.Seq-1, target.ID)
		}
		return s.recordChange(ctx, target, prev, head)
	}

	next := &store.Snapshot{
		ID:               idgen.Snapshot(),
		TargetID:         target.ID,
		Seq:              head.Seq + 1,
		Title:            title,
		CanonicalContent: canonical,
		ContentHash:      hash,
	}
	if err := s.store.InsertSnapshot(ctx, next); err != nil {
		return nil, err
	}
	return s.recordChange(ctx, target, head, next)
}

func (s *Service) recordChange(ctx context.Context, target *store.Target, from, to *store.Snapshot) (*store.Change, error) {
	segments := diff.Compute(from.CanonicalContent, to.CanonicalContent)
	diffJSON, err := diff.Marshal(segments)
	if err != nil {
		return nil, err
	}
	ch := &store.Change{
		ID:       idgen.Change(),
		TargetID: target.ID,
		FromSeq:  from.Seq,
		ToSeq:    to.Seq,
		DiffJSON: diffJSON,
	}
	if err := s.store.InsertChange(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// handleFetchError finalizes a job according to the failure kind and applies
// target-level consequences.
func (s *Service) handleFetchError(ctx context.Context, job *jobq.Job, target *store.Target, fetchErr error, log *slog.Logger) {
	kind := fetch.KindOf(fetchErr)
	log.Warn("check: fetch failed", "kind", kind.String(), "error", fetchErr)

	switch kind {
	case fetch.KindAuthExpired:
		// Retrying a dead session cannot succeed. Park the job and the
		// target until the operator refreshes credentials.
		if err := s.queue.FailAuth(ctx, job.ID, fetchErr.Error()); err != nil {
			log.Debug("check: finalize needs_reauth", "error", err)
			return
		}
		if err := s.store.Deactivate(ctx, target.ID, "needs_reauth"); err != nil {
			log.Error("check: deactivate target", "error", err)
		}
		s.touch(ctx, target.ID, log)

	case fetch.KindNotFound:
		// Each completed check counts once toward the threshold; the job
		// does not retry within itself.
		n, err := s.store.BumpNotFound(ctx, target.ID)
		if err != nil {
			s.failJob(ctx, job, fmt.Sprintf("bump not-found: %v", err), log)
			return
		}
		msg := fmt.Sprintf("not found (%d/%d): %v", n, s.config.NotFoundThreshold, fetchErr)
		if err := s.queue.Exhaust(ctx, job.ID, msg); err != nil {
			log.Debug("check: finalize not-found", "error", err)
			return
		}
		if n >= s.config.NotFoundThreshold {
			reason := fmt.Sprintf("not found %d consecutive times", n)
			if err := s.store.Deactivate(ctx, target.ID, reason); err != nil {
				log.Error("check: deactivate target", "error", err)
			} else {
				log.Info("check: target deactivated", "reason", reason)
			}
		}
		s.touch(ctx, target.ID, log)

	default:
		// Timeout, rate limit, parse failure, and the unclassified rest all
		// retry with backoff.
		s.failJob(ctx, job, fetchErr.Error(), log)
	}
}

// failJob records a retryable failure. When the job exhausts its retries
// the target's cadence clock still advances, so the next scheduled check
// happens a full check_frequency later rather than immediately.
func (s *Service) failJob(ctx context.Context, job *jobq.Job, msg string, log *slog.Logger) {
	state, err := s.queue.Fail(ctx, job.ID, msg)
	if err != nil {
		log.Debug("check: finalize failure", "error", err)
		return
	}
	if state == jobq.StateExhausted {
		log.Warn("check: retries exhausted", "last_error", msg)
		s.touch(ctx, job.TargetID, log)
	}
}

func (s *Service) exhaustJob(ctx context.Context, job *jobq.Job, msg string, log *slog.Logger) {
	if err := s.queue.Exhaust(ctx, job.ID, msg); err != nil {
		log.Debug("check: finalize exhausted", "error", err)
		return
	}
	log.Error("check: unrecoverable job", "last_error", msg)
}

func (s *Service) touch(ctx context.Context, targetID string, log *slog.Logger) {
	if err := s.store.TouchChecked(ctx, targetID, time.Now()); err != nil {
		log.Warn("check: touch last_checked_at", "error", err)
	}
}
