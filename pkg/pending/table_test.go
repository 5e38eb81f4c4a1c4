package pending_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hive/pkg/pending"
)

func TestTrackDeliverResolves(t *testing.T) {
	tbl := pending.New(nil)

	ch := tbl.Track("req-1", "researcher", time.Second)
	tbl.Deliver("req-1", json.RawMessage(`{"answer":true}`))

	select {
	case res := <-ch:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if string(res.Payload) != `{"answer":true}` {
			t.Errorf("payload = %s", res.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("result not delivered")
	}

	if tbl.Len() != 0 {
		t.Errorf("Len = %d after delivery, want 0", tbl.Len())
	}
}

func TestTrackTimesOut(t *testing.T) {
	tbl := pending.New(nil)

	start := time.Now()
	ch := tbl.Track("req-slow", "researcher", time.Second)

	select {
	case res := <-ch:
		elapsed := time.Since(start)
		if res.Err == nil {
			t.Fatal("expected timeout error")
		}
		var te *pending.TimeoutError
		if !errors.As(res.Err, &te) {
			t.Fatalf("error type = %T", res.Err)
		}
		if te.Error() != "Agent researcher did not respond within 1000 ms" {
			t.Errorf("message = %q", te.Error())
		}
		// Rejects at or after the deadline, and not unreasonably late.
		if elapsed < time.Second || elapsed > 1500*time.Millisecond {
			t.Errorf("timed out after %v, want [1.0s, 1.5s]", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestDeliverAfterTimeoutIsDropped(t *testing.T) {
	tbl := pending.New(nil)

	ch := tbl.Track("req-2", "planner", 10*time.Millisecond)
	res := <-ch
	if res.Err == nil {
		t.Fatal("expected timeout")
	}

	// The slot is gone; a late response must be a no-op, not a second send.
	tbl.Deliver("req-2", json.RawMessage(`{}`))

	select {
	case extra := <-ch:
		t.Fatalf("second result delivered: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDoubleDeliverResolvesOnce(t *testing.T) {
	tbl := pending.New(nil)

	ch := tbl.Track("req-3", "planner", time.Second)
	tbl.Deliver("req-3", json.RawMessage(`"first"`))
	tbl.Deliver("req-3", json.RawMessage(`"second"`))

	res := <-ch
	if string(res.Payload) != `"first"` {
		t.Errorf("payload = %s, want first delivery", res.Payload)
	}
	select {
	case extra := <-ch:
		t.Fatalf("slot resolved twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRejectSurfacesError(t *testing.T) {
	tbl := pending.New(nil)

	ch := tbl.Track("req-4", "backend", time.Second)
	tbl.Reject("req-4", errors.New("worker is busy"))

	res := <-ch
	if res.Err == nil || res.Err.Error() != "worker is busy" {
		t.Errorf("err = %v", res.Err)
	}
}

func TestDeliverUnknownIDIsNoOp(t *testing.T) {
	tbl := pending.New(nil)
	tbl.Deliver("never-tracked", json.RawMessage(`{}`))
	if tbl.Len() != 0 {
		t.Errorf("Len = %d", tbl.Len())
	}
}

func TestSweepClearsExpiredEntries(t *testing.T) {
	tbl := pending.New(nil)

	// Long enough that the per-slot timer will not fire during the test;
	// Sweep with a skewed clock has to do the clearing.
	ch := tbl.Track("req-5", "archivist", time.Hour)

	tbl.SetNowFunc(func() time.Time { return time.Now().Add(2 * time.Hour) })
	tbl.Sweep()

	select {
	case res := <-ch:
		var te *pending.TimeoutError
		if !errors.As(res.Err, &te) {
			t.Fatalf("err = %v", res.Err)
		}
		if te.Agent != "archivist" {
			t.Errorf("agent = %q", te.Agent)
		}
	case <-time.After(time.Second):
		t.Fatal("sweep did not reject the entry")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d after sweep", tbl.Len())
	}
}
