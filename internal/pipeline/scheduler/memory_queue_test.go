package scheduler

import (
	"context"
	"testing"
)

func TestMemoryQueue_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	q.Enqueue(ctx, 10, "low")
	q.Enqueue(ctx, 300, "high")
	q.Enqueue(ctx, 50, "mid")

	want := []string{"high", "mid", "low"}
	for _, expected := range want {
		got, ok, err := q.Dequeue(ctx, "w1")
		if err != nil || !ok {
			t.Fatalf("dequeue failed: ok=%v err=%v", ok, err)
		}
		if got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	}

	if _, ok, _ := q.Dequeue(ctx, "w1"); ok {
		t.Error("expected empty queue")
	}
}

func TestMemoryQueue_TiesAreFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	q.Enqueue(ctx, 100, "first")
	q.Enqueue(ctx, 100, "second")
	q.Enqueue(ctx, 100, "third")

	for _, expected := range []string{"first", "second", "third"} {
		got, _, _ := q.Dequeue(ctx, "w1")
		if got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	}
}

func TestMemoryQueue_EnqueueExistingUpdatesPriority(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	q.Enqueue(ctx, 10, "claim")
	q.Enqueue(ctx, 500, "claim")

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	q.Enqueue(ctx, 100, "other")
	got, _, _ := q.Dequeue(ctx, "w1")
	if got != "claim" {
		t.Errorf("expected re-prioritized claim first, got %s", got)
	}
}

func TestMemoryQueue_Remove(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	q.Enqueue(ctx, 10, "a")
	q.Enqueue(ctx, 20, "b")

	removed, err := q.Remove(ctx, "b")
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}
	if removed, _ := q.Remove(ctx, "missing"); removed {
		t.Error("removing an absent claim should report false")
	}

	got, _, _ := q.Dequeue(ctx, "w1")
	if got != "a" {
		t.Errorf("expected a, got %s", got)
	}
}

func TestMemoryQueue_DeadLetter(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	q.DeadLetter(ctx, "claim-1", "terminal failure")

	dead := q.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
	if dead[0].ClaimID != "claim-1" || dead[0].Reason != "terminal failure" {
		t.Errorf("unexpected entry: %+v", dead[0])
	}
}
