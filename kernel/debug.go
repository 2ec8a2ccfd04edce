package kernel

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

type waiterDump struct {
	Tid      int
	Priority uint8
}

type processDump struct {
	Pid     int
	Status  string
	Handles map[Handle]string

	TlsPages int

	Mutexes      map[uint64][]waiterDump
	Conditionals map[uint64][]waiterDump
}

// DumpState writes a diagnostic snapshot of the handle table and wait
// queues, for postmortems of wedged guests.
func (p *Process) DumpState(w io.Writer) {
	dump := processDump{
		Pid:          p.Pid,
		Handles:      make(map[Handle]string),
		Mutexes:      make(map[uint64][]waiterDump),
		Conditionals: make(map[uint64][]waiterDump),
	}

	p.Handles.mu.Lock()
	for handle, obj := range p.Handles.entries {
		dump.Handles[handle] = obj.ObjectType().String()
	}
	p.Handles.mu.Unlock()

	p.mu.Lock()
	dump.Status = p.status.String()
	dump.TlsPages = len(p.tlsPages)
	p.mu.Unlock()

	p.mutexLock.Lock()
	for address, q := range p.mutexes {
		dump.Mutexes[address] = dumpWaiters(q)
	}
	p.mutexLock.Unlock()

	p.condLock.Lock()
	for address, q := range p.conditionals {
		dump.Conditionals[address] = dumpWaiters(q)
	}
	p.condLock.Unlock()

	spew.Fdump(w, dump)
}

func dumpWaiters(q []*WaitStatus) []waiterDump {
	out := make([]waiterDump, len(q))

	for i, ws := range q {
		out[i] = waiterDump{Tid: ws.tid, Priority: ws.priority}
	}

	return out
}
