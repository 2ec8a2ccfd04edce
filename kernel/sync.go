package kernel

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alyxdeburca/strato/log"
)

// WaitStatus is the host-side record for one guest thread blocked on a
// mutex or conditional variable. The flag is set exactly once: either by a
// waker (Queued -> Signalled) or never, with the waiter removing itself on
// timeout (Queued -> TimedOut). A waiter is never re-queued.
type WaitStatus struct {
	priority uint8
	tid      int

	signalled bool
	signal    chan struct{}
}

func newWaitStatus(t *Thread) *WaitStatus {
	return &WaitStatus{
		priority: t.Priority,
		tid:      t.Tid,
		signal:   make(chan struct{}),
	}
}

// wake sets the flag and releases the waiter. Caller holds the queue's
// coarse lock, which is what makes the set-once check safe.
func (ws *WaitStatus) wake() {
	if ws.signalled {
		return
	}

	ws.signalled = true
	close(ws.signal)
}

// insertWaiter keeps the queue ordered by descending priority, FIFO within
// a priority. The head is always the next thread to wake.
func insertWaiter(q []*WaitStatus, ws *WaitStatus) []*WaitStatus {
	for i, cur := range q {
		if cur.priority < ws.priority {
			q = append(q, nil)
			copy(q[i+1:], q[i:])
			q[i] = ws

			return q
		}
	}

	return append(q, ws)
}

func removeWaiter(q []*WaitStatus, ws *WaitStatus) ([]*WaitStatus, bool) {
	for i, cur := range q {
		if cur == ws {
			return append(q[:i], q[i+1:]...), true
		}
	}

	return q, false
}

// setQueue maintains the invariant that a queue exists in the map only
// while it has waiters.
func setQueue(m map[uint64][]*WaitStatus, address uint64, q []*WaitStatus) {
	if len(q) == 0 {
		delete(m, address)
	} else {
		m[address] = q
	}
}

// MutexLock locks the guest mutex word at address on behalf of the thread
// carried by ctx. When alwaysLock is false the call is advisory: it returns
// without blocking unless the word currently tags owner as the holder. An
// unlocked word is acquired immediately by writing the caller's handle. On
// return from a blocked wait the calling thread owns the mutex; ctx
// cancellation is the only other way out.
func (p *Process) MutexLock(ctx context.Context, address uint64, owner Handle, alwaysLock bool) error {
	t, ok := GetThread(ctx)
	if !ok {
		return errors.Wrap(ErrNoThread, "mutex lock")
	}

	p.mutexLock.Lock()

	word, err := p.ReadU32(address)
	if err != nil {
		p.mutexLock.Unlock()
		return err
	}

	if !alwaysLock && Handle(word&MutexOwnerMask) != owner {
		p.mutexLock.Unlock()
		return nil
	}

	if word&MutexOwnerMask == MutexUnlocked {
		err := p.WriteU32(address, uint32(t.Handle)&MutexOwnerMask)
		p.mutexLock.Unlock()

		log.L.Trace("mutex-acquire", "pid", p.Pid, "tid", t.Tid, "address", address)

		return err
	}

	ws := newWaitStatus(t)
	p.mutexes[address] = insertWaiter(p.mutexes[address], ws)

	p.mutexLock.Unlock()

	log.L.Trace("mutex-wait", "pid", p.Pid, "tid", t.Tid, "address", address)

	select {
	case <-ws.signal:
		return nil

	case <-ctx.Done():
		p.mutexLock.Lock()
		q, removed := removeWaiter(p.mutexes[address], ws)
		setQueue(p.mutexes, address, q)
		p.mutexLock.Unlock()

		if !removed {
			// Lost the race with an unlock; we own the mutex.
			return nil
		}

		return ctx.Err()
	}
}

// MutexUnlock hands the mutex word at address to the highest-priority
// waiter and reports whether anyone was there to take it. With no waiters
// the word is reset to unlocked and false is returned.
func (p *Process) MutexUnlock(address uint64) (bool, error) {
	p.mutexLock.Lock()
	defer p.mutexLock.Unlock()

	q := p.mutexes[address]
	if len(q) == 0 {
		return false, p.WriteU32(address, MutexUnlocked)
	}

	ws := q[0]
	setQueue(p.mutexes, address, q[1:])

	word := uint32(p.threadHandle(ws.tid)) & MutexOwnerMask
	if len(q) > 1 {
		word |= MutexWaitersBit
	}

	err := p.WriteU32(address, word)

	ws.wake()

	log.L.Trace("mutex-handoff", "pid", p.Pid, "tid", ws.tid, "address", address)

	return true, err
}

// ConditionalVariableWait queues the calling thread on the conditional
// variable at address until signalled or until timeoutNanos elapses. A zero
// timeout waits forever. Reports true when signalled, false when it timed
// out; timing out removes the entry from the queue.
func (p *Process) ConditionalVariableWait(ctx context.Context, address uint64, timeoutNanos uint64) (bool, error) {
	t, ok := GetThread(ctx)
	if !ok {
		return false, errors.Wrap(ErrNoThread, "conditional variable wait")
	}

	ws := newWaitStatus(t)

	p.condLock.Lock()
	p.conditionals[address] = insertWaiter(p.conditionals[address], ws)
	p.condLock.Unlock()

	log.L.Trace("conditional-wait", "pid", p.Pid, "tid", t.Tid, "address", address, "timeout", timeoutNanos)

	var timeout <-chan time.Time

	if timeoutNanos != 0 {
		timer := time.NewTimer(time.Duration(timeoutNanos))
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case <-ws.signal:
		return true, nil

	case <-timeout:
		if p.abandonConditionalWait(address, ws) {
			return false, nil
		}

		// Signalled while the timer was firing.
		return true, nil

	case <-ctx.Done():
		if p.abandonConditionalWait(address, ws) {
			return false, ctx.Err()
		}

		return true, nil
	}
}

// abandonConditionalWait removes ws from the queue at address, reporting
// false if a signal already claimed it.
func (p *Process) abandonConditionalWait(address uint64, ws *WaitStatus) bool {
	p.condLock.Lock()
	defer p.condLock.Unlock()

	q, removed := removeWaiter(p.conditionals[address], ws)
	setQueue(p.conditionals, address, q)

	return removed
}

// ConditionalVariableSignal wakes up to amount waiters queued at address,
// highest priority first. Fewer are woken when the queue is shorter.
func (p *Process) ConditionalVariableSignal(address uint64, amount uint64) {
	p.condLock.Lock()
	defer p.condLock.Unlock()

	q := p.conditionals[address]

	n := uint64(len(q))
	if amount < n {
		n = amount
	}

	for _, ws := range q[:n] {
		ws.wake()

		log.L.Trace("conditional-signal", "pid", p.Pid, "tid", ws.tid, "address", address)
	}

	setQueue(p.conditionals, address, q[n:])
}

// drainWaiters force-wakes every queued waiter on both primitives. Used by
// the exit path so no host goroutine is left parked behind a mutex that
// will never be unlocked.
func (p *Process) drainWaiters() {
	p.mutexLock.Lock()
	for address, q := range p.mutexes {
		for _, ws := range q {
			ws.wake()
		}

		delete(p.mutexes, address)
	}
	p.mutexLock.Unlock()

	p.condLock.Lock()
	for address, q := range p.conditionals {
		for _, ws := range q {
			ws.wake()
		}

		delete(p.conditionals, address)
	}
	p.condLock.Unlock()
}
