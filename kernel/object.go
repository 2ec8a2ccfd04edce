package kernel

// Handle is the opaque integer guest code uses to name a kernel object.
type Handle uint32

type ObjectType int

const (
	ObjectProcess ObjectType = iota
	ObjectThread
	ObjectSharedMemory
	ObjectTransferMemory
	ObjectPrivateMemory
	ObjectSession
	ObjectEvent
)

func (t ObjectType) String() string {
	switch t {
	case ObjectProcess:
		return "process"
	case ObjectThread:
		return "thread"
	case ObjectSharedMemory:
		return "shared-memory"
	case ObjectTransferMemory:
		return "transfer-memory"
	case ObjectPrivateMemory:
		return "private-memory"
	case ObjectSession:
		return "session"
	case ObjectEvent:
		return "event"
	}

	return "unknown"
}

// Object is anything a handle can reference. The table stores objects
// behind this interface and revalidates the concrete kind on every typed
// lookup.
type Object interface {
	ObjectType() ObjectType
}

// MemoryObject is implemented by the memory-backed kinds so the table can
// resolve a guest address back to the object owning it.
type MemoryObject interface {
	Object

	Address() uint64
	Size() uint64
}

// PrivateMemory is memory visible only to the owning process. The process
// heap and TLS pages are backed by these.
type PrivateMemory struct {
	Start  uint64
	Length uint64
}

func (m *PrivateMemory) ObjectType() ObjectType { return ObjectPrivateMemory }
func (m *PrivateMemory) Address() uint64        { return m.Start }
func (m *PrivateMemory) Size() uint64           { return m.Length }

// SharedMemory is memory mapped into more than one process. Its mapping
// internals live with the memory manager; the process core only tracks the
// range and the handle.
type SharedMemory struct {
	Start  uint64
	Length uint64
}

func (m *SharedMemory) ObjectType() ObjectType { return ObjectSharedMemory }
func (m *SharedMemory) Address() uint64        { return m.Start }
func (m *SharedMemory) Size() uint64           { return m.Length }

// TransferMemory is memory lent to another process for the duration of an
// IPC exchange.
type TransferMemory struct {
	Start  uint64
	Length uint64
}

func (m *TransferMemory) ObjectType() ObjectType { return ObjectTransferMemory }
func (m *TransferMemory) Address() uint64        { return m.Start }
func (m *TransferMemory) Size() uint64           { return m.Length }

// Session is one end of an IPC connection to a service. Constructed by the
// IPC layer and registered here.
type Session struct {
	Service string
}

func (s *Session) ObjectType() ObjectType { return ObjectSession }

// Event is a signalable kernel object. Its wait semantics belong to the
// event implementation; the process core only hands out handles to it.
type Event struct {
	Signalled bool
}

func (e *Event) ObjectType() ObjectType { return ObjectEvent }
