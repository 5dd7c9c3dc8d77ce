package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/vigil/dbopen"
	"github.com/hazyhaar/vigil/idgen"
	"github.com/hazyhaar/vigil/monitor/internal/diff"
	"github.com/hazyhaar/vigil/monitor/internal/pipeline"
	"github.com/hazyhaar/vigil/monitor/internal/store"
	_ "modernc.org/sqlite"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []*pipeline.Event
	fail   int // fail this many calls before succeeding
}

func (f *fakeNotifier) Notify(_ context.Context, ev *pipeline.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("delivery refused")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func fixture(t *testing.T, not pipeline.Notifier) (*store.Store, *pipeline.Pipeline, *store.Change) {
	t.Helper()
	s := store.New(dbopen.OpenMemory(t))
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	ctx := context.Background()

	tgt := &store.Target{ID: idgen.Target(), Owner: "alice", URL: "https://example.com", Type: store.TypeWebsite}
	if err := s.InsertTarget(ctx, tgt); err != nil {
		t.Fatalf("InsertTarget: %v", err)
	}

	diffJSON, err := diff.Marshal([]diff.Segment{
		{Op: diff.OpModified, Before: "Engineer", After: "Senior Engineer"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	ch := &store.Change{ID: idgen.Change(), TargetID: tgt.ID, FromSeq: 1, ToSeq: 2, DiffJSON: diffJSON}
	if err := s.InsertChange(ctx, ch); err != nil {
		t.Fatalf("InsertChange: %v", err)
	}

	p := pipeline.New(s, &pipeline.TextSummarizer{}, not, pipeline.Config{Attempts: 2})
	return s, p, ch
}

func TestDriveFullLifecycle(t *testing.T) {
	not := &fakeNotifier{}
	s, p, ch := fixture(t, not)
	ctx := context.Background()

	if err := p.Drive(ctx, ch.ID); err != nil {
		t.Fatalf("Drive: %v", err)
	}

	got, _ := s.GetChange(ctx, ch.ID)
	if got.Status != store.StatusNotified {
		t.Errorf("status = %q, want notified", got.Status)
	}
	if got.Summary == "" {
		t.Error("no summary recorded")
	}
	if got.NotifiedAt == nil {
		t.Error("notified_at not set")
	}
	if not.count() != 1 {
		t.Errorf("notified %d times, want 1", not.count())
	}
	if not.events[0].Summary != got.Summary {
		t.Error("delivered summary differs from stored summary")
	}
}

func TestDriveIdempotent(t *testing.T) {
	// WHAT: Driving an already-notified change delivers nothing new.
	// WHY: The redrive loop and the worker can race on the same change.
	not := &fakeNotifier{}
	_, p, ch := fixture(t, not)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Drive(ctx, ch.ID); err != nil {
			t.Fatalf("Drive %d: %v", i, err)
		}
	}
	if not.count() != 1 {
		t.Errorf("notified %d times, want 1", not.count())
	}
}

func TestDriveNotifyFailureLeavesAnalyzed(t *testing.T) {
	// WHAT: When delivery keeps failing, the change parks in analyzed with
	// its summary intact, ready for redrive.
	not := &fakeNotifier{fail: 10}
	s, p, ch := fixture(t, not)
	ctx := context.Background()

	if err := p.Drive(ctx, ch.ID); err == nil {
		t.Fatal("expected delivery error")
	}

	got, _ := s.GetChange(ctx, ch.ID)
	if got.Status != store.StatusAnalyzed {
		t.Errorf("status = %q, want analyzed", got.Status)
	}
	if got.Summary == "" {
		t.Error("summary lost on failed delivery")
	}

	// Delivery recovers; redrive finishes the job without re-analyzing.
	not.mu.Lock()
	not.fail = 0
	not.mu.Unlock()
	p.Redrive(ctx)

	got, _ = s.GetChange(ctx, ch.ID)
	if got.Status != store.StatusNotified {
		t.Errorf("status after redrive = %q, want notified", got.Status)
	}
	if not.count() != 1 {
		t.Errorf("notified %d times, want 1", not.count())
	}
}

func TestRedrivePicksUpPending(t *testing.T) {
	not := &fakeNotifier{}
	s, p, ch := fixture(t, not)
	ctx := context.Background()

	// Nothing drove this change yet; one redrive pass carries it through
	// both stages.
	p.Redrive(ctx)

	got, _ := s.GetChange(ctx, ch.ID)
	if got.Status != store.StatusNotified {
		t.Errorf("status = %q, want notified", got.Status)
	}
	if not.count() != 1 {
		t.Errorf("notified %d times, want 1", not.count())
	}
}

func TestTextSummarizer(t *testing.T) {
	tgt := &store.Target{URL: "https://example.com/careers"}
	segs := []diff.Segment{
		{Op: diff.OpModified, Before: "Engineer", After: "Senior Engineer"},
		{Op: diff.OpAdded, After: "Remote friendly"},
	}
	sum := &pipeline.TextSummarizer{}
	got, err := sum.Summarize(context.Background(), tgt, segs)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	for _, want := range []string{"example.com/careers", "1 modified", "1 added", "Senior Engineer"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q: %s", want, got)
		}
	}
}

func TestTextSummarizerClipsExamples(t *testing.T) {
	tgt := &store.Target{URL: "https://example.com"}
	var segs []diff.Segment
	for i := 0; i < 10; i++ {
		segs = append(segs, diff.Segment{Op: diff.OpAdded, After: "line"})
	}
	sum := &pipeline.TextSummarizer{MaxExamples: 2}
	got, err := sum.Summarize(context.Background(), tgt, segs)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(got, "and 8 more") {
		t.Errorf("summary should mention clipped examples: %s", got)
	}
}
