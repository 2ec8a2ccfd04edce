package kernel

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/alyxdeburca/strato/log"
	"github.com/alyxdeburca/strato/memory"
)

var (
	ErrOutOfMemory   = errors.New("out of memory")
	ErrBadTransition = errors.New("bad process status transition")
)

type ProcessStatus int

const (
	Created ProcessStatus = iota
	Started
	Exiting
)

func (s ProcessStatus) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Exiting:
		return "exiting"
	}

	return "unknown"
}

// Process holds the kernel-visible state of one guest process: its handle
// table, thread registry, TLS pages, heap, and the mutex/condvar wait
// queues. One host goroutine runs per guest thread; all of them share this
// object.
type Process struct {
	Pid int

	Handles *HandleTable

	mem *memory.VirtualMemory

	mu       sync.Mutex
	status   ProcessStatus
	threads  map[int]*Thread
	nextTid  int
	tlsPages []*tlsPage
	heap     *PrivateMemory

	selfHandle Handle
	mainThread *Thread

	// Coarse locks for the synchronization subsystem, one per primitive so
	// mutex traffic never contends with condvar traffic. Held only for
	// queue bookkeeping, never across a blocked wait.
	mutexLock    sync.Mutex
	mutexes      map[uint64][]*WaitStatus
	condLock     sync.Mutex
	conditionals map[uint64][]*WaitStatus
}

func (p *Process) ObjectType() ObjectType { return ObjectProcess }

// NewProcess builds the process around mem, places the heap and the first
// TLS page, and creates the main thread at entryPoint with the given stack
// bounds. The process registers itself in its own handle table.
func NewProcess(pid int, mem *memory.VirtualMemory, entryPoint, stackBase, stackSize uint64) (*Process, error) {
	p := &Process{
		Pid:          pid,
		Handles:      NewHandleTable(),
		mem:          mem,
		status:       Created,
		threads:      make(map[int]*Thread),
		nextTid:      pid,
		mutexes:      make(map[uint64][]*WaitStatus),
		conditionals: make(map[uint64][]*WaitStatus),
	}

	p.selfHandle = p.Handles.Insert(p)

	if err := p.initializeMemory(); err != nil {
		return nil, err
	}

	if _, err := mem.NewRegion(stackBase, stackSize); err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "mapping stack at %x: %v", stackBase, err)
	}

	main, err := p.CreateThread(entryPoint, 0, stackBase+stackSize, DefaultPriority)
	if err != nil {
		return nil, err
	}

	p.mainThread = main

	log.L.Trace("process-new", "pid", pid, "entry", entryPoint, "stack-base", stackBase)

	return p, nil
}

// initializeMemory places the heap and maps the initial TLS page, whose
// first slot is reserved for user-mode exception handling.
func (p *Process) initializeMemory() error {
	heap, _, err := p.NewPrivateMemory(HeapAddr, DefaultHeapSize)
	if err != nil {
		return err
	}

	p.heap = heap

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err = p.newTlsPage()
	return err
}

// SelfHandle is the handle under which the process is registered in its own
// table.
func (p *Process) SelfHandle() Handle {
	return p.selfHandle
}

func (p *Process) MainThread() *Thread {
	return p.mainThread
}

func (p *Process) Heap() *PrivateMemory {
	return p.heap
}

func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Start marks the process running. Called once the scheduler begins
// executing the main thread.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != Created {
		return errors.Wrapf(ErrBadTransition, "start from %s", p.status)
	}

	p.status = Started

	log.L.Trace("process-start", "pid", p.Pid)

	return nil
}

// Exit moves the process to Exiting, force-wakes every queued mutex and
// condvar waiter so no host goroutine stays parked, and releases the
// backing memory.
func (p *Process) Exit() {
	p.mu.Lock()

	if p.status == Exiting {
		p.mu.Unlock()
		return
	}

	p.status = Exiting
	p.mu.Unlock()

	log.L.Trace("process-exit", "pid", p.Pid)

	p.drainWaiters()

	p.mem.Release()
}

// CreateThread registers a new guest thread. The thread object is also
// inserted into the handle table; the returned Thread carries its handle.
func (p *Process) CreateThread(entryPoint, entryArg, stackTop uint64, priority uint8) (*Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == Exiting {
		return nil, errors.Wrapf(ErrBadTransition, "create thread while %s", p.status)
	}

	tid := p.nextTid
	p.nextTid++

	t := &Thread{
		Tid:        tid,
		EntryPoint: entryPoint,
		EntryArg:   entryArg,
		StackTop:   stackTop,
		Priority:   priority,
	}

	t.Handle = p.Handles.Insert(t)

	p.threads[tid] = t

	log.L.Trace("thread-create", "pid", p.Pid, "tid", tid, "priority", priority, "handle", t.Handle)

	return t, nil
}

func (p *Process) Thread(tid int) (*Thread, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[tid]
	return t, ok
}

func (p *Process) threadHandle(tid int) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.threads[tid]; ok {
		return t.Handle
	}

	return 0
}

// NewPrivateMemory maps size bytes of process-private memory at addr and
// registers the object, returning it with its handle.
func (p *Process) NewPrivateMemory(addr, size uint64) (*PrivateMemory, Handle, error) {
	reg, err := p.mem.NewRegion(addr, size)
	if err != nil {
		return nil, 0, errors.Wrapf(ErrOutOfMemory, "mapping private memory at %x: %v", addr, err)
	}

	m := &PrivateMemory{Start: reg.Start, Length: reg.Size}

	return m, p.Handles.Insert(m), nil
}

// NewEvent constructs an event object and registers it.
func (p *Process) NewEvent() (*Event, Handle) {
	e := &Event{}
	return e, p.Handles.Insert(e)
}

// NewSession registers a session for the named service.
func (p *Process) NewSession(service string) (*Session, Handle) {
	s := &Session{Service: service}
	return s, p.Handles.Insert(s)
}
