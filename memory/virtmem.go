package memory

import (
	"github.com/pkg/errors"
)

const PageSize = 4096 // platform page size for the emulated guest

// NoAddress requests that NewRegion choose the mapping address.
const NoAddress = ^uint64(0)

type Region struct {
	Start, Size uint64

	linear []byte
}

func (reg *Region) Contains(x uint64) bool {
	if x < reg.Start {
		return false
	}

	if x >= reg.Start+reg.Size {
		return false
	}

	return true
}

func pageRound(sz uint64) uint64 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

var ErrInvalidMemoryAccess = errors.New("invalid memory access via projection")

func (reg *Region) Project(addr, sz uint64) ([]byte, error) {
	if addr < reg.Start {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess,
			"projection below region start: address=%x, size=%x", addr, sz)
	}

	offset := addr - reg.Start

	// Compared by subtraction: sz is guest-controlled and offset+sz can wrap.
	if sz > reg.Size || offset > reg.Size-sz {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess,
			"projection crosses region end: address=%x, size=%x", addr, sz)
	}

	if len(reg.linear) == 0 {
		reg.linear = make([]byte, pageRound(offset+sz))
	}

	if uint64(len(reg.linear)) < offset+sz {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz], nil
}

type VirtualMemory struct {
	regions []*Region

	nextMapStart uint64
	size         uint64
}

func NewVirtualMemory(mapStart uint64) *VirtualMemory {
	return &VirtualMemory{
		nextMapStart: mapStart,
	}
}

func (vm *VirtualMemory) Size() int {
	return int(vm.size)
}

func (vm *VirtualMemory) FindRegion(addr uint64) (*Region, bool) {
	for _, reg := range vm.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

func (vm *VirtualMemory) Project(addr, sz uint64) ([]byte, error) {
	reg, ok := vm.FindRegion(addr)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error projecting address=%x, size=%x", addr, sz)
	}

	return reg.Project(addr, sz)
}

var ErrBadRegionRequest = errors.New("bad region request")

// NewRegion maps size bytes at addr, rounded up to the page size. Passing
// NoAddress picks the next free mapping address. Requesting an
// already-mapped addr returns the existing region as long as it is large
// enough.
func (vm *VirtualMemory) NewRegion(addr, size uint64) (*Region, error) {
	if addr == NoAddress {
		addr = vm.nextMapStart
		vm.nextMapStart += pageRound(size)
	} else {
		reg, ok := vm.FindRegion(addr)
		if ok {
			if reg.Size < size {
				return nil, errors.Wrapf(ErrBadRegionRequest,
					"existing region at %x too small: %x < %x", addr, reg.Size, size)
			}

			return reg, nil
		}
	}

	reg := &Region{
		Start: addr,
		Size:  pageRound(size),
	}

	vm.regions = append(vm.regions, reg)

	vm.size += reg.Size

	if reg.Contains(vm.nextMapStart) {
		vm.nextMapStart = pageRound(addr + size)
	}

	return reg, nil
}

// Release drops every region, returning the backing buffers to the host.
func (vm *VirtualMemory) Release() {
	vm.regions = nil
	vm.size = 0
}
