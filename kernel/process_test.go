package kernel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/alyxdeburca/strato/memory"
)

const (
	testStackBase = 0x30000000
	testStackSize = 0x10000
	testMapStart  = 0x40000000
)

func newTestProcess(t *testing.T) *Process {
	t.Helper()

	mem := memory.NewVirtualMemory(testMapStart)

	p, err := NewProcess(1, mem, BaseAddr, testStackBase, testStackSize)
	require.NoError(t, err)

	return p
}

func TestProcess(t *testing.T) {
	n := neko.Modern(t)

	n.It("starts life Created with a main thread and a heap", func(t *testing.T) {
		p := newTestProcess(t)

		require.Equal(t, Created, p.Status())

		main := p.MainThread()
		require.NotNil(t, main)

		require.Equal(t, uint64(BaseAddr), main.EntryPoint)
		require.Equal(t, uint64(testStackBase+testStackSize), main.StackTop)
		require.Equal(t, DefaultPriority, main.Priority)

		got, ok := p.Thread(main.Tid)
		require.True(t, ok)
		require.Same(t, main, got)

		heap := p.Heap()
		require.Equal(t, uint64(HeapAddr), heap.Address())
		require.Equal(t, uint64(DefaultHeapSize), heap.Size())
	})

	n.It("registers itself in its own handle table", func(t *testing.T) {
		p := newTestProcess(t)

		got, err := GetHandle[*Process](p.Handles, p.SelfHandle())
		require.NoError(t, err)

		require.Same(t, p, got)
	})

	n.It("transitions Created to Started exactly once", func(t *testing.T) {
		p := newTestProcess(t)

		require.NoError(t, p.Start())
		require.Equal(t, Started, p.Status())

		require.ErrorIs(t, p.Start(), ErrBadTransition)
	})

	n.It("assigns fresh tids and handles to created threads", func(t *testing.T) {
		p := newTestProcess(t)

		a, err := p.CreateThread(BaseAddr+0x100, 7, testStackBase+0x1000, 30)
		require.NoError(t, err)

		b, err := p.CreateThread(BaseAddr+0x200, 0, testStackBase+0x2000, 31)
		require.NoError(t, err)

		require.NotEqual(t, a.Tid, b.Tid)
		require.NotEqual(t, a.Handle, b.Handle)

		got, err := GetHandle[*Thread](p.Handles, a.Handle)
		require.NoError(t, err)
		require.Same(t, a, got)
	})

	n.It("refuses new threads once exiting", func(t *testing.T) {
		p := newTestProcess(t)

		p.Exit()
		require.Equal(t, Exiting, p.Status())

		_, err := p.CreateThread(BaseAddr, 0, testStackBase, 30)
		require.ErrorIs(t, err, ErrBadTransition)
	})

	n.It("force-wakes queued waiters on exit", func(t *testing.T) {
		p := newTestProcess(t)

		holder, err := p.CreateThread(BaseAddr, 0, testStackBase, 30)
		require.NoError(t, err)

		waiter, err := p.CreateThread(BaseAddr, 0, testStackBase, 30)
		require.NoError(t, err)

		addr := uint64(HeapAddr) + 0x40

		// Locked by the holder so the waiter really parks.
		require.NoError(t, p.WriteU32(addr, uint32(holder.Handle)))

		done := make(chan error, 1)

		go func() {
			ctx := SetThread(context.Background(), waiter)
			done <- p.MutexLock(ctx, addr, 0, true)
		}()

		require.Eventually(t, func() bool {
			return mutexWaiters(p, addr) == 1
		}, time.Second, time.Millisecond)

		p.Exit()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter still parked after exit")
		}

		require.Equal(t, 0, mutexWaiters(p, addr))
	})

	n.It("dumps process state for diagnostics", func(t *testing.T) {
		p := newTestProcess(t)

		var buf bytes.Buffer
		p.DumpState(&buf)

		require.Contains(t, buf.String(), "thread")
		require.Contains(t, buf.String(), "private-memory")
	})

	n.Meow()
}
