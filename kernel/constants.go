package kernel

import "github.com/alyxdeburca/strato/memory"

// Guest address-space layout. The guest binary is linked against these, so
// they are fixed for the target ABI.
const (
	BaseAddr        = 0x8000000
	TlsAddr         = 0x10000000
	HeapAddr        = 0x20000000
	DefaultHeapSize = 0x200000
)

const (
	TlsSlotSize = 0x200
	TlsSlots    = memory.PageSize / TlsSlotSize
)

// DefaultPriority is the priority assigned to a process's main thread.
const DefaultPriority uint8 = 44

// BaseHandleIndex seeds the handle counter. Values below it are reserved by
// the guest ABI for pseudo-handles.
const BaseHandleIndex Handle = 0xd000

// Guest mutex word layout: the low 30 bits tag the owner thread's handle,
// bit 30 is set while more waiters are queued, zero means unlocked. Guest
// code CASes this word directly on the uncontended path.
const (
	MutexUnlocked   uint32 = 0
	MutexWaitersBit uint32 = 0x40000000
	MutexOwnerMask  uint32 = ^MutexWaitersBit
)
