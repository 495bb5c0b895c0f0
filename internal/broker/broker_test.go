package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/submission"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

type fakeInvoker struct {
	id     uuid.UUID
	sub    uuid.UUID
	bound  bool
	closed bool
}

func (f *fakeInvoker) UUID() uuid.UUID { return f.id }
func (f *fakeInvoker) BoundSubmission() (uuid.UUID, bool) {
	return f.sub, f.bound
}
func (f *fakeInvoker) Close() { f.closed = true }

func TestRegisterAndSnapshotInvokers(t *testing.T) {
	b := New()
	idle := &fakeInvoker{id: uuid.New()}
	busySub := uuid.New()
	busy := &fakeInvoker{id: uuid.New(), sub: busySub, bound: true}

	b.RegisterInvoker(idle)
	b.RegisterInvoker(busy)

	snap := b.InvokersSnapshot()
	if snap[idle.id.String()] != nil {
		t.Errorf("idle invoker should snapshot to nil, got %v", snap[idle.id.String()])
	}
	if got := snap[busy.id.String()]; got == nil || *got != busySub.String() {
		t.Errorf("busy invoker snapshot = %v, want %s", got, busySub)
	}
}

func TestUnregisterInvokerDoesNotEvictReconnectedSession(t *testing.T) {
	b := New()
	id := uuid.New()
	stale := &fakeInvoker{id: id}
	fresh := &fakeInvoker{id: id}

	b.RegisterInvoker(stale)
	b.RegisterInvoker(fresh) // reconnect under the same invoker uuid
	b.UnregisterInvoker(stale)

	snap := b.InvokersSnapshot()
	if _, ok := snap[id.String()]; !ok {
		t.Error("expected the fresh session to remain registered")
	}
}

func TestUnregisterInvokerRemovesOwnEntry(t *testing.T) {
	b := New()
	inv := &fakeInvoker{id: uuid.New()}
	b.RegisterInvoker(inv)
	b.UnregisterInvoker(inv)

	if _, ok := b.InvokersSnapshot()[inv.id.String()]; ok {
		t.Error("expected invoker removed from snapshot")
	}
}

func TestDeleteInvokerClosesAndRemoves(t *testing.T) {
	b := New()
	inv := &fakeInvoker{id: uuid.New()}
	b.RegisterInvoker(inv)

	if err := b.DeleteInvoker(inv.id); err != nil {
		t.Fatalf("DeleteInvoker: %v", err)
	}
	if !inv.closed {
		t.Error("expected invoker to be closed")
	}
	if _, ok := b.InvokersSnapshot()[inv.id.String()]; ok {
		t.Error("expected invoker removed from snapshot")
	}
}

func TestDeleteInvokerUnknownUUID(t *testing.T) {
	b := New()
	if err := b.DeleteInvoker(uuid.New()); err == nil {
		t.Fatal("expected error for unknown invoker uuid")
	}
}

func TestEnqueueAndTakeSubmission(t *testing.T) {
	b := New()
	s := submission.New(uuid.New(), []byte("data"), 3)

	if err := b.EnqueueSubmission(s); err != nil {
		t.Fatalf("EnqueueSubmission: %v", err)
	}

	results := b.ResultsSnapshot()
	if len(results[s.UUID.String()]) != 3 {
		t.Fatalf("allocated results = %d, want 3", len(results[s.UUID.String()]))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.TakeSubmission(ctx)
	if err != nil {
		t.Fatalf("TakeSubmission: %v", err)
	}
	if got.UUID != s.UUID {
		t.Errorf("got submission %s, want %s", got.UUID, s.UUID)
	}
}

func TestEnqueueSubmissionQueueFullRollsBackAllocation(t *testing.T) {
	b := New()
	for i := 0; i < QueueCapacity; i++ {
		if err := b.EnqueueSubmission(submission.New(uuid.New(), nil, 1)); err != nil {
			t.Fatalf("EnqueueSubmission[%d]: %v", i, err)
		}
	}

	overflow := submission.New(uuid.New(), nil, 1)
	if err := b.EnqueueSubmission(overflow); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if _, ok := b.ResultsSnapshot()[overflow.UUID.String()]; ok {
		t.Error("expected rolled-back allocation to be absent from results")
	}
}

func TestEnqueueSubmissionBindConflict(t *testing.T) {
	b := New()
	s := submission.New(uuid.New(), nil, 2)
	if err := b.EnqueueSubmission(s); err != nil {
		t.Fatalf("EnqueueSubmission: %v", err)
	}

	dup := submission.New(s.UUID, nil, 2)
	if err := b.EnqueueSubmission(dup); !errors.Is(err, ErrBindConflict) {
		t.Fatalf("err = %v, want ErrBindConflict", err)
	}
	if len(b.ResultsSnapshot()[s.UUID.String()]) != 2 {
		t.Error("expected original allocation to survive the conflicting enqueue")
	}
}

func TestTakeSubmissionCancelled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.TakeSubmission(ctx); err == nil {
		t.Fatal("expected error from a cancelled context")
	}
}

func TestSetTestResultOutOfRange(t *testing.T) {
	b := New()
	s := submission.New(uuid.New(), nil, 2)
	if err := b.EnqueueSubmission(s); err != nil {
		t.Fatalf("EnqueueSubmission: %v", err)
	}

	if !b.SetTestResult(s.UUID, 1, verdict.TestResult{Verdict: verdict.OK}) {
		t.Error("SetTestResult(1) should succeed for a 2-test submission")
	}
	if b.SetTestResult(s.UUID, 3, verdict.TestResult{Verdict: verdict.OK}) {
		t.Error("SetTestResult(3) should fail for a 2-test submission")
	}
	if b.SetTestResult(s.UUID, 0, verdict.TestResult{Verdict: verdict.OK}) {
		t.Error("SetTestResult(0) should fail, tests are 1-indexed")
	}
}

func TestConsumeAndDropResults(t *testing.T) {
	b := New()
	s := submission.New(uuid.New(), nil, 1)
	if err := b.EnqueueSubmission(s); err != nil {
		t.Fatalf("EnqueueSubmission: %v", err)
	}

	if _, ok := b.ConsumeResults(s.UUID); !ok {
		t.Fatal("expected results present")
	}
	if _, ok := b.ConsumeResults(s.UUID); ok {
		t.Error("expected results removed after consume")
	}

	s2 := submission.New(uuid.New(), nil, 1)
	if err := b.EnqueueSubmission(s2); err != nil {
		t.Fatalf("EnqueueSubmission: %v", err)
	}
	b.DropResults(s2.UUID)
	if _, ok := b.ResultsSnapshot()[s2.UUID.String()]; ok {
		t.Error("expected dropped results absent from snapshot")
	}
}
