package fanout_test

import (
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/framekit/fanout"
	"github.com/e7canasta/framekit/framepool"
)

func newTestPool(t *testing.T, slots int) *framepool.Pool {
	t.Helper()
	pool, err := framepool.New(framepool.Config{
		Geometry:      framepool.Geometry{Width: 8, Height: 8, Format: framepool.FormatGray8},
		Slots:         slots,
		AcquireBudget: -1,
	})
	if err != nil {
		t.Fatalf("framepool.New failed: %v", err)
	}
	return pool
}

func acquireShared(t *testing.T, pool *framepool.Pool, consumers int, frameID uint64) *framepool.Frame {
	t.Helper()
	h := pool.Acquire(consumers, framepool.Metadata{FrameID: frameID, ProducerID: "test"})
	if !h.Ok() {
		t.Fatalf("Acquire refused (frame %d)", frameID)
	}
	h.Buffer()[0] = byte(frameID)
	return h.Share()
}

// --- Test 1: Zero-Copy Delivery ---

// TestPooledDeliverySharesPointer validates that a pooled frame reaches
// every subscriber as the same object, and the declared releases drain the
// slot back to the pool.
func TestPooledDeliverySharesPointer(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r1, err := f.Subscribe("a")
	if err != nil {
		t.Fatalf("Subscribe(a) failed: %v", err)
	}
	r2, err := f.Subscribe("b")
	if err != nil {
		t.Fatalf("Subscribe(b) failed: %v", err)
	}

	frame := acquireShared(t, pool, f.SubscriberCount(), 1)
	f.Publish(frame)

	got1 := r1.Receive()
	got2 := r2.Receive()
	if got1 == nil || got2 == nil {
		t.Fatal("Receive returned nil with a frame delivered")
	}
	if got1 != got2 {
		t.Error("subscribers received different frame objects for a pooled publish")
	}
	if got1.Data()[0] != 1 {
		t.Errorf("frame pixels = %d, want 1", got1.Data()[0])
	}

	got1.Release()
	if free := pool.Stats().FreeSlots; free != 1 {
		t.Fatalf("slot freed after 1 of 2 releases (FreeSlots=%d)", free)
	}
	got2.Release()
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("slot not freed after both releases (FreeSlots=%d)", free)
	}

	t.Logf("✅ One slot, two subscribers, zero copies, clean drain")
}

// --- Test 2: Overwrite Releases the Displaced Frame ---

// TestOverwriteReleasesDisplaced validates mailbox overwrite: a slow
// consumer's unconsumed frame is released by the mailbox when a newer one
// lands, so the pool never leaks to slow consumers.
func TestOverwriteReleasesDisplaced(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r, err := f.Subscribe("slow")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	f.Publish(acquireShared(t, pool, 1, 1))
	f.Publish(acquireShared(t, pool, 1, 2)) // displaces frame 1

	// Frame 1's slot must already be back: only frame 2 holds a reference.
	if free := pool.Stats().FreeSlots; free != 1 {
		t.Fatalf("FreeSlots = %d after overwrite, want 1", free)
	}

	got := r.Receive()
	if got.Meta().FrameID != 2 {
		t.Errorf("consumed FrameID = %d, want 2 (latest)", got.Meta().FrameID)
	}
	got.Release()
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d after consume, want 2", free)
	}

	stats := f.Stats().Receivers["slow"]
	if stats.TotalDrops != 1 {
		t.Errorf("TotalDrops = %d, want 1", stats.TotalDrops)
	}
	if stats.ConsecutiveDrops != 0 {
		t.Errorf("ConsecutiveDrops = %d after consume, want 0", stats.ConsecutiveDrops)
	}

	t.Logf("✅ Displaced frame released by the mailbox, drop accounted")
}

// --- Test 3: Subscriber Drift, Fewer Than Acquired ---

// TestSurplusReferencesReclaimed validates drift reconciliation: when
// subscribers leave between Acquire and Publish, the surplus references are
// returned at publish time.
func TestSurplusReferencesReclaimed(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r1, _ := f.Subscribe("a")
	r2, _ := f.Subscribe("b")
	if _, err := f.Subscribe("c"); err != nil {
		t.Fatalf("Subscribe(c) failed: %v", err)
	}

	frame := acquireShared(t, pool, f.SubscriberCount(), 1) // 3 references
	if err := f.Unsubscribe("c"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	f.Publish(frame) // 2 delivered, 1 surplus released now

	if got := f.Stats().Reclaimed; got != 1 {
		t.Errorf("Reclaimed = %d, want 1", got)
	}

	r1.Receive().Release()
	r2.Receive().Release()
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d after drain, want 2 (surplus ref lost)", free)
	}

	t.Logf("✅ 3 acquired references, 2 subscribers: surplus returned at publish")
}

// --- Test 4: Subscriber Drift, More Than Acquired ---

// TestSubscribersBeyondBudgetSkipped validates the other drift direction: a
// frame acquired for K consumers reaches at most K subscribers; later ones
// are skipped and counted, never given an unbacked reference.
func TestSubscribersBeyondBudgetSkipped(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r1, _ := f.Subscribe("first")
	frame := acquireShared(t, pool, f.SubscriberCount(), 1) // 1 reference

	r2, _ := f.Subscribe("late")
	f.Publish(frame)

	got := r1.Receive()
	if got == nil {
		t.Fatal("first subscriber got nothing")
	}
	if _, ok := r2.TryReceive(); ok {
		t.Error("subscriber beyond the reference budget received the frame")
	}
	if got2 := f.Stats().Skipped; got2 != 1 {
		t.Errorf("Skipped = %d, want 1", got2)
	}

	got.Release()
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d, want 2", free)
	}

	t.Logf("✅ Late subscriber skipped, reference accounting intact")
}

// --- Test 5: Owned Broadcast Distribution ---

// TestOwnedBroadcastCopies validates owned-frame distribution: the first
// subscriber gets the original buffer, every further one an independent
// copy with equal pixels.
func TestOwnedBroadcastCopies(t *testing.T) {
	f := fanout.New(nil)
	defer f.Close()

	r1, _ := f.Subscribe("a")
	r2, _ := f.Subscribe("b")
	r3, _ := f.Subscribe("c")

	data := []byte{9, 8, 7, 6}
	orig := framepool.NewOwnedFrame(framepool.Metadata{FrameID: 5}, data)
	f.Publish(orig)

	g1, g2, g3 := r1.Receive(), r2.Receive(), r3.Receive()
	if g1 != orig {
		t.Error("first subscriber did not get the original frame")
	}
	if g2 == orig || g3 == orig {
		t.Error("a copy subscriber got the original frame")
	}
	for i, g := range []*framepool.Frame{g1, g2, g3} {
		if g.Meta().FrameID != 5 {
			t.Errorf("subscriber %d FrameID = %d, want 5", i, g.Meta().FrameID)
		}
		for j, b := range g.Data() {
			if b != data[j] {
				t.Fatalf("subscriber %d byte %d = %d, want %d", i, j, b, data[j])
			}
		}
	}
	if &g2.Data()[0] == &g1.Data()[0] || &g3.Data()[0] == &g1.Data()[0] {
		t.Error("copies alias the original buffer")
	}
	g1.Release()
	g2.Release()
	g3.Release()

	t.Logf("✅ Original plus 2 independent copies delivered")
}

// --- Test 6: Unsubscribe Wakes and Cleans Up ---

// TestUnsubscribeWakesReceiver validates that Unsubscribe unblocks a parked
// Receive with nil and releases any frame left in the mailbox.
func TestUnsubscribeWakesReceiver(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r, _ := f.Subscribe("worker")

	done := make(chan *framepool.Frame, 1)
	go func() { done <- r.Receive() }()

	time.Sleep(20 * time.Millisecond) // let Receive park
	if err := f.Unsubscribe("worker"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	select {
	case got := <-done:
		if got != nil {
			t.Error("Receive returned a frame after Unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not wake on Unsubscribe")
	}

	// Parked-frame cleanup: deliver, never consume, unsubscribe.
	if _, err := f.Subscribe("worker2"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	f.Publish(acquireShared(t, pool, 1, 1))
	if err := f.Unsubscribe("worker2"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d, want 2 (parked frame not released)", free)
	}

	t.Logf("✅ Blocked Receive woken with nil, parked frame released")
}

// --- Test 7: Close Semantics ---

// TestCloseReleasesEverything validates Close: receivers wake with nil,
// parked frames are released, and publishes after Close return their
// references instead of leaking them.
func TestCloseReleasesEverything(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)

	r1, _ := f.Subscribe("a")
	f.Publish(acquireShared(t, pool, 1, 1)) // parked in r1's mailbox

	f.Close()
	f.Close() // idempotent

	if got := r1.Receive(); got != nil {
		t.Error("Receive returned a frame after Close")
	}
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d after Close, want 2", free)
	}

	// Publish after Close: references come straight back.
	f.Publish(acquireShared(t, pool, 1, 2))
	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d after post-Close publish, want 2", free)
	}

	if _, err := f.Subscribe("late"); !errors.Is(err, fanout.ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}

	t.Logf("✅ Close drained mailboxes and refuses new work")
}

// --- Test 8: Registration Errors ---

// TestSubscriptionErrors validates the sentinel error surface.
func TestSubscriptionErrors(t *testing.T) {
	f := fanout.New(nil)
	defer f.Close()

	if _, err := f.Subscribe(""); !errors.Is(err, fanout.ErrEmptyID) {
		t.Errorf("empty id error = %v, want ErrEmptyID", err)
	}

	if _, err := f.Subscribe("dup"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := f.Subscribe("dup"); !errors.Is(err, fanout.ErrSubscriberExists) {
		t.Errorf("duplicate error = %v, want ErrSubscriberExists", err)
	}

	if err := f.Unsubscribe("ghost"); !errors.Is(err, fanout.ErrSubscriberNotFound) {
		t.Errorf("unknown unsubscribe error = %v, want ErrSubscriberNotFound", err)
	}

	t.Logf("✅ Sentinel errors for empty, duplicate, unknown ids")
}

// --- Test 9: TryReceive ---

// TestTryReceive validates the non-blocking consume path.
func TestTryReceive(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	r, _ := f.Subscribe("poller")

	if _, ok := r.TryReceive(); ok {
		t.Error("TryReceive on empty mailbox returned ok")
	}

	f.Publish(acquireShared(t, pool, 1, 1))
	got, ok := r.TryReceive()
	if !ok || got == nil {
		t.Fatal("TryReceive missed the delivered frame")
	}
	got.Release()

	if _, ok := r.TryReceive(); ok {
		t.Error("TryReceive returned the same frame twice")
	}

	t.Logf("✅ TryReceive consumes at most once, never blocks")
}

// --- Test 10: Publish Without Subscribers ---

// TestPublishNoSubscribers validates that a pooled frame published into an
// empty fanout is fully released rather than stranded.
func TestPublishNoSubscribers(t *testing.T) {
	pool := newTestPool(t, 2)
	f := fanout.New(nil)
	defer f.Close()

	f.Publish(acquireShared(t, pool, 1, 1))

	if free := pool.Stats().FreeSlots; free != 2 {
		t.Fatalf("FreeSlots = %d, want 2 (frame stranded)", free)
	}
	if got := f.Stats().Reclaimed; got != 1 {
		t.Errorf("Reclaimed = %d, want 1", got)
	}

	t.Logf("✅ Subscriber-less publish returned the slot immediately")
}
