package kernel

import (
	"encoding/binary"
	"io"
)

// ReadMemory fills dst from process memory starting at offset. These
// primitives address the backing store directly; whether the range belongs
// to a registered memory object is the caller's concern (see
// HandleTable.MemoryObject).
func (p *Process) ReadMemory(dst []byte, offset uint64) error {
	src, err := p.mem.Project(offset, uint64(len(dst)))
	if err != nil {
		return err
	}

	copy(dst, src)

	return nil
}

// WriteMemory copies src into process memory at offset. No partial-write
// guarantee is made on failure.
func (p *Process) WriteMemory(src []byte, offset uint64) error {
	dst, err := p.mem.Project(offset, uint64(len(src)))
	if err != nil {
		return err
	}

	copy(dst, src)

	return nil
}

// CopyMemory copies size bytes from srcOffset to dstOffset within process
// memory.
func (p *Process) CopyMemory(srcOffset, dstOffset, size uint64) error {
	src, err := p.mem.Project(srcOffset, size)
	if err != nil {
		return err
	}

	dst, err := p.mem.Project(dstOffset, size)
	if err != nil {
		return err
	}

	copy(dst, src)

	return nil
}

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	if err := p.ReadMemory(b, uint64(off)); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (p *Process) WriteAt(b []byte, off int64) (int, error) {
	if err := p.WriteMemory(b, uint64(off)); err != nil {
		return 0, err
	}

	return len(b), nil
}

type readAdapter struct {
	sub    io.ReaderAt
	offset int64
}

func (ra readAdapter) Read(b []byte) (int, error) {
	return ra.sub.ReadAt(b, ra.offset)
}

type writeAdapter struct {
	sub    io.WriterAt
	offset int64
}

func (wa writeAdapter) Write(b []byte) (int, error) {
	return wa.sub.WriteAt(b, wa.offset)
}

// CopyIn reads the fixed-size value val points at from guest memory,
// little-endian per the target ABI.
func (p *Process) CopyIn(addr uint64, val interface{}) error {
	return binary.Read(readAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

// CopyOut writes the fixed-size value val to guest memory.
func (p *Process) CopyOut(addr uint64, val interface{}) error {
	return binary.Write(writeAdapter{sub: p, offset: int64(addr)}, binary.LittleEndian, val)
}

func (p *Process) ReadU32(addr uint64) (uint32, error) {
	var v uint32

	err := p.CopyIn(addr, &v)
	return v, err
}

func (p *Process) WriteU32(addr uint64, v uint32) error {
	return p.CopyOut(addr, v)
}
