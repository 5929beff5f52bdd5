package lock

import (
	"testing"
	"time"
)

func TestTryAcquireReadsAreCompatible(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}
	if !m.TryAcquire(1, res, Read) {
		t.Fatalf("expected first read lock to succeed")
	}
	if !m.TryAcquire(2, res, Read) {
		t.Fatalf("expected concurrent read lock to succeed")
	}
}

func TestTryAcquireWriteConflictsWithRead(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}
	if !m.TryAcquire(1, res, Read) {
		t.Fatalf("expected first read lock to succeed")
	}
	if m.TryAcquire(2, res, Write) {
		t.Fatalf("expected write lock to conflict with an existing read")
	}
}

func TestReleaseAllFreesResourceForOthers(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}
	m.TryAcquire(1, res, Write)
	if m.TryAcquire(2, res, Write) {
		t.Fatalf("expected conflict before release")
	}
	m.ReleaseAll(1)
	if !m.TryAcquire(2, res, Write) {
		t.Fatalf("expected lock to be acquirable after release")
	}
}

func TestDetectDeadlockFindsCycleAndPicksYoungestVictim(t *testing.T) {
	m := NewManager()
	a := Resource{Kind: "node", ID: 1}
	b := Resource{Kind: "node", ID: 2}

	if !m.TryAcquire(1, a, Write) {
		t.Fatalf("tx1 should acquire a")
	}
	if !m.TryAcquire(2, b, Write) {
		t.Fatalf("tx2 should acquire b")
	}
	if m.TryAcquire(2, a, Write) {
		t.Fatalf("tx2 should block waiting on a")
	}
	if m.TryAcquire(1, b, Write) {
		t.Fatalf("tx1 should block waiting on b")
	}

	info, found := m.DetectDeadlock()
	if !found {
		t.Fatalf("expected a deadlock to be detected")
	}
	if info.Victim != 2 {
		t.Fatalf("expected the youngest tx (2) to be the victim, got %d", info.Victim)
	}
}

func TestDetectTimeoutsAbortsStaleWaiters(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}
	m.TryAcquire(1, res, Write)
	m.TryAcquire(2, res, Write) // tx2 now waiting

	timedOut := m.DetectTimeouts(0)
	if len(timedOut) != 1 || timedOut[0] != 2 {
		t.Fatalf("expected tx2 to time out immediately with a zero threshold, got %v", timedOut)
	}
}

func TestOptimisticVersionCaptureAndVerify(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}

	rc := NewReadContext()
	m.Capture(rc, res)
	if err := m.Verify(rc); err != nil {
		t.Fatalf("expected no conflict before any write, got %v", err)
	}

	m.Bump(res)
	if err := m.Verify(rc); err == nil {
		t.Fatalf("expected a version conflict after a bump")
	}
}

func TestDetectTimeoutsIgnoresFreshWaiters(t *testing.T) {
	m := NewManager()
	res := Resource{Kind: "node", ID: 1}
	m.TryAcquire(1, res, Write)
	m.TryAcquire(2, res, Write)

	timedOut := m.DetectTimeouts(time.Hour)
	if len(timedOut) != 0 {
		t.Fatalf("expected no timeouts with a generous threshold, got %v", timedOut)
	}
}
