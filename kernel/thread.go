package kernel

// Thread records what the process core needs to know about one guest
// thread. Execution itself belongs to the CPU engine; this core tracks
// identity, scheduling priority, and the entry/stack parameters the engine
// is handed.
type Thread struct {
	Tid    int
	Handle Handle

	EntryPoint uint64
	EntryArg   uint64
	StackTop   uint64
	Priority   uint8
}

func (t *Thread) ObjectType() ObjectType { return ObjectThread }
