// Package vm implements the CRISP-32 virtual machine core.
package vm

// Page size is fixed at 4 KiB; a virtual address splits into a 20-bit
// virtual page number and a 12-bit offset.
const (
	PageShift  = 12
	PageOffset = 0xFFF
)

// Page-table entry bits. Bits [31:12] hold the physical page number;
// [11:4] are reserved.
const (
	PTEValid = 1 << 0
	PTEWrite = 1 << 1
	PTEExec  = 1 << 2
	PTEUser  = 1 << 3

	PTEFrameMask = 0xFFFFF000
)

// MMU translates virtual addresses to physical addresses through a
// single-level page table held in guest memory. Kernel mode always
// bypasses translation: kernel and physical address spaces are identical.
// Page-table writes by the guest take effect immediately.
type MMU struct {
	mem *Memory

	// KernelMode is the privilege flag. Initially true.
	KernelMode bool

	// PagingEnabled gates translation for user mode. Initially false.
	PagingEnabled bool

	// PTBR is the physical address of the page table.
	PTBR uint32

	// NumPages is the number of valid virtual pages.
	NumPages uint32
}

// NewMMU creates an MMU over the given memory window, starting in kernel
// mode with paging disabled.
func NewMMU(mem *Memory) *MMU {
	return &MMU{mem: mem, KernelMode: true}
}

// Translate maps a virtual address to a physical address under the current
// privilege and paging settings. A denial returns a *Fault carrying
// interrupt 8; the caller decides whether to raise it. Page-table reads are
// always physical.
func (u *MMU) Translate(vaddr uint32, isWrite, isExec bool) (uint32, error) {
	if u.KernelMode || !u.PagingEnabled {
		return vaddr, nil
	}

	vpn := vaddr >> PageShift
	off := vaddr & PageOffset

	if vpn >= u.NumPages {
		return 0, &Fault{Interrupt: IntPageFault, Addr: vaddr, Write: isWrite, Exec: isExec}
	}

	pteAddr := u.PTBR + 4*vpn
	if uint64(pteAddr)+4 > uint64(u.mem.Size()) {
		return 0, &Fault{Interrupt: IntPageFault, Addr: vaddr, Write: isWrite, Exec: isExec}
	}

	pte, err := u.mem.Read32(pteAddr)
	if err != nil {
		return 0, &Fault{Interrupt: IntPageFault, Addr: vaddr, Write: isWrite, Exec: isExec}
	}

	switch {
	case pte&PTEValid == 0:
		// invalid page
	case pte&PTEUser == 0:
		// user access to a kernel-only page
	case isWrite && pte&PTEWrite == 0:
		// write to a read-only page
	case isExec && pte&PTEExec == 0:
		// execute on a non-executable page
	default:
		return (pte & PTEFrameMask) | off, nil
	}

	return 0, &Fault{Interrupt: IntPageFault, Addr: vaddr, Write: isWrite, Exec: isExec}
}
