package kernel

import (
	"github.com/alyxdeburca/strato/log"
	"github.com/alyxdeburca/strato/memory"
)

// tlsPage tracks one platform page carved into TlsSlots slots of
// TlsSlotSize bytes. Slots are handed out sequentially; the first slot of
// the first page is pre-reserved for user-mode exception handling and never
// returned by the allocator.
type tlsPage struct {
	address uint64
	index   uint8
	slots   [TlsSlots]bool
}

func (t *tlsPage) full() bool {
	return t.index >= TlsSlots
}

func (t *tlsPage) slot(n uint8) uint64 {
	return t.address + uint64(n)*TlsSlotSize
}

func (t *tlsPage) reserveSlot() (uint64, bool) {
	if t.full() {
		return 0, false
	}

	n := t.index
	t.slots[n] = true
	t.index++

	return t.slot(n), true
}

// newTlsPage maps a fresh TLS page behind a private-memory handle. Caller
// holds p.mu.
func (p *Process) newTlsPage() (*tlsPage, error) {
	addr := TlsAddr + uint64(len(p.tlsPages))*memory.PageSize

	_, _, err := p.NewPrivateMemory(addr, memory.PageSize)
	if err != nil {
		return nil, err
	}

	page := &tlsPage{address: addr}

	if len(p.tlsPages) == 0 {
		page.slots[0] = true
		page.index = 1
	}

	p.tlsPages = append(p.tlsPages, page)

	log.L.Trace("tls-page", "pid", p.Pid, "address", addr, "pages", len(p.tlsPages))

	return page, nil
}

// GetTlsSlot returns the address of a free TLS slot, scanning existing
// pages before mapping a new one. Failure to back a new page is fatal to
// the call.
func (p *Process) GetTlsSlot() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, page := range p.tlsPages {
		if addr, ok := page.reserveSlot(); ok {
			return addr, nil
		}
	}

	page, err := p.newTlsPage()
	if err != nil {
		return 0, err
	}

	addr, _ := page.reserveSlot()

	return addr, nil
}
