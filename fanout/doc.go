// Package fanout distributes frames from one producer to many consumers
// through per-subscriber single-slot mailboxes.
//
// Each subscriber holds the latest undelivered frame only: a newer frame
// overwrites an unconsumed one, and the mailbox releases the displaced
// frame itself. Drops are expected and healthy for consumers slower than
// the source; they mean each consumer always works on the freshest frame.
//
// The package understands framepool reference budgets. A producer acquires
// with consumers = SubscriberCount() and publishes the shared frame; the
// fanout delivers within that budget, returns surplus references when
// subscribers have left, and skips subscribers beyond it. Owned frames are
// distributed as one original plus independent copies. In every case,
// after Publish returns, exactly the delivered mailboxes owe a Release.
//
// Typical consumer loop:
//
//	recv, err := f.Subscribe("saver")
//	if err != nil {
//		return err
//	}
//	defer f.Unsubscribe("saver")
//
//	for {
//		frame := recv.Receive() // blocks; latest frame only
//		if frame == nil {
//			return nil // unsubscribed or fanout closed
//		}
//		process(frame.Data())
//		frame.Release()
//	}
package fanout
