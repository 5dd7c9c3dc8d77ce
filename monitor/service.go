package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/vigil/idgen"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// CreateTarget registers a URL for monitoring and queues its first check
// immediately. A zero checkFrequency defaults to one hour. The same owner
// cannot monitor the same URL twice.
func (s *Service) CreateTarget(ctx context.Context, owner, url, targetType string, checkFrequency time.Duration) (*Target, error) {
	if checkFrequency == 0 {
		checkFrequency = time.Hour
	}
	t := &store.Target{
		ID:             idgen.Target(),
		Owner:          owner,
		URL:            strings.TrimSpace(url),
		Type:           targetType,
		CheckFrequency: checkFrequency.Milliseconds(),
	}
	if err := validateTargetInput(t); err != nil {
		return nil, err
	}

	existing, err := s.store.GetTargetByOwnerURL(ctx, owner, t.URL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.URL)
	}

	if err := s.store.InsertTarget(ctx, t); err != nil {
		// Lost the race against a concurrent create of the same (owner, url).
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.URL)
		}
		return nil, err
	}

	// Baseline check right away rather than waiting out the first cadence.
	if _, err := s.queue.Enqueue(ctx, t.ID); err != nil {
		s.logger.Warn("monitor: initial check enqueue failed", "target", t.ID, "error", err)
	}
	s.logger.Info("monitor: target created",
		"target", t.ID, "owner", owner, "url", t.URL, "type", targetType)
	return t, nil
}

// GetTarget retrieves a target by ID.
func (s *Service) GetTarget(ctx context.Context, targetID string) (*Target, error) {
	t, err := s.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	return t, nil
}

// ListTargets returns all targets for an owner, newest first.
func (s *Service) ListTargets(ctx context.Context, owner string) ([]*Target, error) {
	return s.store.ListTargets(ctx, owner)
}

// DeleteTarget removes a target with its snapshots, changes, and job
// history.
func (s *Service) DeleteTarget(ctx context.Context, targetID string) error {
	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return err
	}
	if err := s.queue.ResetTarget(ctx, targetID); err != nil {
		return err
	}
	return s.store.DeleteTarget(ctx, targetID)
}

// TriggerCheck queues an immediate check regardless of cadence. Returns
// jobq.ErrInFlight when a check is already queued or running.
func (s *Service) TriggerCheck(ctx context.Context, targetID string) (string, error) {
	t, err := s.GetTarget(ctx, targetID)
	if err != nil {
		return "", err
	}
	if !t.Active {
		return "", fmt.Errorf("%w: target %s is deactivated (%s)", ErrInvalidInput, targetID, t.DeactivatedReason)
	}
	return s.queue.Enqueue(ctx, targetID)
}

// GetJob retrieves a check job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*CheckJob, error) {
	return s.queue.Get(ctx, jobID)
}

// ListSnapshots returns the most recent snapshots for a target, newest
// first.
func (s *Service) ListSnapshots(ctx context.Context, targetID string, limit int) ([]*Snapshot, error) {
	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, targetID, limit)
}

// ListChanges returns changes detected at or after since, newest first.
func (s *Service) ListChanges(ctx context.Context, targetID string, since time.Time) ([]*Change, error) {
	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return nil, err
	}
	return s.store.ListChanges(ctx, targetID, since)
}

// SetActive pauses or resumes a target. Reactivation clears the not-found
// counter and the terminal job history, so monitoring restarts clean.
func (s *Service) SetActive(ctx context.Context, targetID string, active bool) error {
	if _, err := s.GetTarget(ctx, targetID); err != nil {
		return err
	}
	if !active {
		return s.store.Deactivate(ctx, targetID, "manual")
	}
	if err := s.store.Activate(ctx, targetID); err != nil {
		return err
	}
	if err := s.store.ResetNotFound(ctx, targetID); err != nil {
		return err
	}
	if err := s.queue.ResetTarget(ctx, targetID); err != nil {
		return err
	}
	if _, err := s.queue.Enqueue(ctx, targetID); err != nil {
		s.logger.Warn("monitor: resume check enqueue failed", "target", targetID, "error", err)
	}
	return nil
}
