package chat

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, policy Policy) (*Queue, *Registry, *fakeOffline) {
	t.Helper()
	reg := NewRegistry()
	off := newFakeOffline()
	q := NewQueue(reg, off, policy, discardLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q, reg, off
}

func TestChatToOfflineReceiverIsStoredBeforeEnqueueReturns(t *testing.T) {
	q, _, off := newTestQueue(t, testPolicy(3, time.Second))
	payload := []byte(`{"type":"chat","message_id":"m1","uuid":"abc"}`)

	q.Enqueue(2, Event{MessageID: "m1", Kind: KindChat, Payload: payload}, 3, time.Second)

	got, ok := off.get(2, "m1")
	if !ok {
		t.Fatal("chat for offline receiver not in offline store")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stored=%s want=%s", got, payload)
	}
	if q.Pending("m1") {
		t.Fatal("id must not be pending and stored at once")
	}
}

func TestTypingToOfflineReceiverIsDropped(t *testing.T) {
	q, _, off := newTestQueue(t, testPolicy(3, 10*time.Millisecond))

	q.Send(2, Event{MessageID: "t1", Kind: KindTyping, Payload: []byte(`{"type":"typing"}`)})

	time.Sleep(50 * time.Millisecond)
	if stores, _ := off.counts(); stores != 0 {
		t.Fatalf("offline writes=%d want=0", stores)
	}
	if q.PendingCount() != 0 {
		t.Fatalf("pending=%d want=0", q.PendingCount())
	}
}

func TestAckBeforeIntervalStopsRetransmission(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(5, 80*time.Millisecond))
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{"type":"chat"}`)})
	waitFor(t, "first transmission", func() bool { return tr.count() == 1 })

	if !q.Acknowledge(2, "m1") {
		t.Fatal("ack of a pending id should report true")
	}
	time.Sleep(250 * time.Millisecond)

	if n := tr.count(); n != 1 {
		t.Fatalf("sends=%d want=1", n)
	}
	if stores, _ := off.counts(); stores != 0 {
		t.Fatalf("acked message was stored offline")
	}
}

func TestNeverAckedChatIsStoredAfterRetriesExhausted(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(3, 10*time.Millisecond))
	tr := &fakeTransport{}
	reg.Add(2, tr)
	payload := []byte(`{"type":"chat","uuid":"abc"}`)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: payload})

	waitFor(t, "offline write", func() bool { _, ok := off.get(2, "m1"); return ok })
	if n := tr.count(); n != 3 {
		t.Fatalf("sends=%d want=3", n)
	}
	if q.Pending("m1") {
		t.Fatal("exhausted delivery still pending")
	}
}

func TestNeverAckedStatusIsDroppedAfterRetries(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(2, 10*time.Millisecond))
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "s1", Kind: KindStatus, Payload: []byte(`{"type":"status"}`)})

	waitFor(t, "retries to finish", func() bool { return tr.count() == 2 && !q.Pending("s1") })
	if stores, _ := off.counts(); stores != 0 {
		t.Fatalf("status event was stored offline")
	}
}

func TestTransportErrorFallsBackImmediately(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(5, time.Hour))
	tr := &fakeTransport{err: errBoom}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "m1", Kind: KindMsgUpdate, Payload: []byte(`{"type":"msgupdate"}`)})

	waitFor(t, "offline write", func() bool { _, ok := off.get(2, "m1"); return ok })
	if n := tr.count(); n != 1 {
		t.Fatalf("attempts=%d want=1", n)
	}
}

func TestReceiverDisconnectMidRetryFallsBackToStore(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(5, 30*time.Millisecond))
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{"type":"chat"}`)})
	waitFor(t, "first transmission", func() bool { return tr.count() == 1 })
	reg.Remove(2)

	waitFor(t, "offline write", func() bool { _, ok := off.get(2, "m1"); return ok })
	if n := tr.count(); n != 1 {
		t.Fatalf("sends=%d want=1", n)
	}
}

func TestAcknowledgeUnknownIDIsNoop(t *testing.T) {
	q, _, _ := newTestQueue(t, DefaultPolicy())
	if q.Acknowledge(2, "nope") {
		t.Fatal("unknown id should report false")
	}
	if q.Acknowledge(2, "nope") {
		t.Fatal("second ack should still be a no-op")
	}
}

func TestAcknowledgeFromOtherReceiverIsIgnored(t *testing.T) {
	q, reg, _ := newTestQueue(t, testPolicy(3, time.Hour))
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{"type":"chat"}`)})
	if q.Acknowledge(1, "m1") {
		t.Fatal("ack from a user the message is not addressed to should report false")
	}
	if !q.Pending("m1") {
		t.Fatal("foreign ack cleared the pending entry")
	}
	if !q.Acknowledge(2, "m1") {
		t.Fatal("ack from the receiver should report true")
	}
}

func TestResubmittedPendingIDKeepsFirstDelivery(t *testing.T) {
	q, reg, off := newTestQueue(t, testPolicy(3, 10*time.Millisecond))
	tr := &fakeTransport{}
	reg.Add(2, tr)
	first := []byte(`{"type":"chat","n":1}`)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: first})
	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{"type":"chat","n":2}`)})

	waitFor(t, "offline write", func() bool { _, ok := off.get(2, "m1"); return ok })
	if n := tr.count(); n != 3 {
		t.Fatalf("sends=%d want=3 from a single retry task", n)
	}
	for _, f := range tr.decoded(t) {
		if f["n"].(float64) != 1 {
			t.Fatalf("resubmitted payload was transmitted: %v", f)
		}
	}
	if got, _ := off.get(2, "m1"); !bytes.Equal(got, first) {
		t.Fatalf("stored=%s want=%s", got, first)
	}
}

func TestKindsOutsideAckSetAreSentOnce(t *testing.T) {
	policy := testPolicy(5, 10*time.Millisecond)
	policy.AckKinds = map[Kind]bool{KindChat: true}
	q, reg, _ := newTestQueue(t, policy)
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "t1", Kind: KindTyping, Payload: []byte(`{"type":"typing"}`)})

	if n := tr.count(); n != 1 {
		t.Fatalf("sends=%d want=1", n)
	}
	if q.Pending("t1") {
		t.Fatal("fire-and-forget kind must not be pending")
	}
	time.Sleep(50 * time.Millisecond)
	if n := tr.count(); n != 1 {
		t.Fatalf("sends after wait=%d want=1", n)
	}
}

func TestShutdownPersistsInFlightChats(t *testing.T) {
	reg := NewRegistry()
	off := newFakeOffline()
	q := NewQueue(reg, off, testPolicy(3, time.Hour), discardLogger(), nil)
	tr := &fakeTransport{}
	reg.Add(2, tr)

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{"type":"chat"}`)})
	q.Send(2, Event{MessageID: "s1", Kind: KindStatus, Payload: []byte(`{"type":"status"}`)})
	waitFor(t, "both transmissions", func() bool { return tr.count() == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, ok := off.get(2, "m1"); !ok {
		t.Fatal("in-flight chat lost at shutdown")
	}
	if _, ok := off.get(2, "s1"); ok {
		t.Fatal("status event must not be stored")
	}

	q.Send(2, Event{MessageID: "m2", Kind: KindChat, Payload: []byte(`{"type":"chat"}`)})
	if _, ok := off.get(2, "m2"); !ok {
		t.Fatal("chat sent after shutdown should go to the offline store")
	}
}

func TestOfflineStoreFailureIsContained(t *testing.T) {
	q, _, off := newTestQueue(t, DefaultPolicy())
	off.storeErr = errBoom

	q.Send(2, Event{MessageID: "m1", Kind: KindChat, Payload: []byte(`{}`)})

	if stores, _ := off.counts(); stores != 1 {
		t.Fatalf("store attempts=%d want=1", stores)
	}
	if q.Pending("m1") {
		t.Fatal("lost message must not stay pending")
	}
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{BackoffFactor: 2, MaxInterval: 5 * time.Second}
	d := time.Second
	var got []time.Duration
	for i := 0; i < 4; i++ {
		d = p.next(d)
		got = append(got, d)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d=%v want=%v", i, got[i], want[i])
		}
	}
	if fixed := (Policy{BackoffFactor: 1}).next(time.Second); fixed != time.Second {
		t.Fatalf("factor 1 changed interval to %v", fixed)
	}
}
