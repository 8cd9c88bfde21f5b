package core

import "testing"

func TestQueueBasics(t *testing.T) {
	q := NewQueue()

	if !q.Empty() || q.Fill() != 0 {
		t.Fatal("new queue not empty")
	}
	if q.Room() != PlannerQueueSize-1 {
		t.Fatalf("room = %d", q.Room())
	}

	q.Push(Entry{Action: ActionLineNum, Int: 42})
	q.Push(Entry{Action: ActionDwell, Float: 0.5})

	if q.Fill() != 2 || q.Empty() {
		t.Fatalf("fill = %d", q.Fill())
	}

	if e := q.Head(); e.Action != ActionLineNum || e.Int != 42 {
		t.Fatalf("head = %+v", e)
	}
	q.Pop()
	if e := q.Head(); e.Action != ActionDwell || e.Float != 0.5 {
		t.Fatalf("head = %+v", e)
	}
	q.Pop()

	if !q.Empty() {
		t.Fatal("queue not empty after pops")
	}
}

func TestQueueFullAndWrap(t *testing.T) {
	q := NewQueue()

	for i := 0; ; i++ {
		if !q.Push(Entry{Action: ActionData, Int: int32(i)}) {
			if i != PlannerQueueSize-1 {
				t.Fatalf("queue filled at %d entries", i)
			}
			break
		}
	}

	// Drain half, refill past the wrap point
	for i := 0; i < PlannerQueueSize/2; i++ {
		q.Pop()
	}
	for i := 0; i < PlannerQueueSize/4; i++ {
		if !q.Push(Entry{Action: ActionData, Int: int32(1000 + i)}) {
			t.Fatal("push failed after drain")
		}
	}

	// FIFO order preserved across the wrap
	if q.Head().Int != int32(PlannerQueueSize/2) {
		t.Fatalf("head after wrap = %d", q.Head().Int)
	}
}

func TestQueueFlush(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 10; i++ {
		q.Push(Entry{Action: ActionData})
	}
	q.Flush()
	if !q.Empty() || q.Fill() != 0 {
		t.Fatal("flush did not empty queue")
	}
	if q.Room() != PlannerQueueSize-1 {
		t.Fatalf("room after flush = %d", q.Room())
	}
}
