// Package layout builds the canonical derived layout from a validated
// platform descriptor: address translation functions, the normalized MMIO
// window table with device roles, and the PCI topology record. Build must
// only be called on a descriptor the validate package accepted; the result
// is immutable and safe to share across threads without synchronization.
package layout

import (
	"errors"
	"fmt"
	"sort"

	"github.com/axle-os/platdesc/internal/descriptor"
	"github.com/axle-os/platdesc/internal/ranges"
)

// ErrOutOfWindow is returned when a translation is asked for an address the
// linear mapping does not cover. Callers must use a per-mapping translation
// for anything outside linear RAM.
var ErrOutOfWindow = errors.New("address outside the linear-mapped window")

// Role tags a derived MMIO window with the device known to decode it.
type Role int

const (
	RoleReserved Role = iota
	RoleRTC
	RoleInterruptController
	RoleUART
	RoleVirtIO
	RoleFlash
	RolePCIECAM
	RolePCIMemory
)

func (r Role) String() string {
	switch r {
	case RoleReserved:
		return "reserved"
	case RoleRTC:
		return "rtc"
	case RoleInterruptController:
		return "interrupt-controller"
	case RoleUART:
		return "uart"
	case RoleVirtIO:
		return "virtio"
	case RoleFlash:
		return "flash"
	case RolePCIECAM:
		return "pci-ecam"
	case RolePCIMemory:
		return "pci-memory"
	default:
		return "unknown"
	}
}

// Window is one entry of the derived MMIO table.
type Window struct {
	ranges.Range
	Role Role
	// Slot is the VirtIO transport index for RoleVirtIO windows, -1
	// otherwise.
	Slot int
}

// Label renders the window's role, with the slot index for VirtIO windows.
func (w Window) Label() string {
	if w.Role == RoleVirtIO {
		return fmt.Sprintf("virtio-slot[%d]", w.Slot)
	}
	return w.Role.String()
}

// PCITopology is the derived PCI host-bridge record.
type PCITopology struct {
	// ECAMBase is the config-space base address; ECAMWindow covers the
	// whole decoded span for buses 0..BusEnd.
	ECAMBase   uint64
	ECAMWindow ranges.Range
	BusEnd     uint8
	// BusStride is the config-space bytes decoded per bus number.
	BusStride uint64
	// Ranges holds the host-bridge windows in kind order (pio, mmio32,
	// mmio64).
	Ranges []descriptor.PCIRange
}

// Window returns the host-bridge window of the given kind, or an empty
// range if the descriptor did not declare one.
func (t PCITopology) Window(kind descriptor.PCIRangeKind) ranges.Range {
	for _, pr := range t.Ranges {
		if pr.Kind == kind {
			return pr.Window
		}
	}
	return ranges.Range{}
}

// Derived is the canonical layout handed to boot-time consumers. All fields
// are fixed at Build time; accessors return copies where aliasing could
// allow mutation.
type Derived struct {
	platform string
	arch     string

	ram          ranges.Range
	linearOffset uint64
	busOffset    uint64

	kernelWindow   ranges.Range
	kernelPhysBase uint64
	kernelVirtBase uint64

	mmio []Window
	pci  PCITopology

	timerHz uint64
}

// wellKnownRoles maps qemu-virt device bases to roles, per qemu's
// hw/riscv/virt.c memory map. Windows not matched here and not identified
// through descriptor fields stay RoleReserved.
var wellKnownRoles = map[uint64]Role{
	0x0010_1000: RoleRTC,
	0x0c00_0000: RoleInterruptController,
	0x1000_0000: RoleUART,
	0x2000_0000: RoleFlash,
}

// Build derives the canonical layout from a validated descriptor.
func Build(d *descriptor.Descriptor) *Derived {
	ecamWindow := ranges.Range{
		Base: d.PCIECAMBase,
		Size: (d.PCIBusEnd + 1) * descriptor.ECAMBusStride,
	}

	pciRanges := make([]descriptor.PCIRange, len(d.PCIRanges))
	copy(pciRanges, d.PCIRanges)
	sort.Slice(pciRanges, func(i, j int) bool {
		return pciRanges[i].Kind < pciRanges[j].Kind
	})

	l := &Derived{
		platform:       d.Platform,
		arch:           d.Arch,
		ram:            d.PhysMemory,
		linearOffset:   d.PhysVirtOffset,
		busOffset:      d.PhysBusOffset,
		kernelWindow:   d.KernelASpace,
		kernelPhysBase: d.KernelPhysBase,
		kernelVirtBase: d.KernelVirtBase,
		mmio:           buildMMIOTable(d, ecamWindow),
		pci: PCITopology{
			ECAMBase:   d.PCIECAMBase,
			ECAMWindow: ecamWindow,
			BusEnd:     uint8(d.PCIBusEnd),
			BusStride:  descriptor.ECAMBusStride,
			Ranges:     pciRanges,
		},
		timerHz: d.TimerFrequency,
	}
	return l
}

// buildMMIOTable normalizes the declared regions into the derived table:
// zero-size windows dropped, duplicates collapsed, sorted by base, each
// window tagged with its role where one is known.
func buildMMIOTable(d *descriptor.Descriptor, ecamWindow ranges.Range) []Window {
	virtioSlot := func(r ranges.Range) int {
		for i, v := range d.VirtIORegions {
			if v == r {
				return i
			}
		}
		return -1
	}
	pciMemory := func(r ranges.Range) bool {
		for _, pr := range d.PCIRanges {
			if pr.Kind != descriptor.PCIRangePIO && pr.Window == r {
				return true
			}
		}
		return false
	}

	seen := make(map[ranges.Range]bool, len(d.MMIORegions))
	table := make([]Window, 0, len(d.MMIORegions))
	for _, r := range d.MMIORegions {
		if r.IsEmpty() || seen[r] {
			continue
		}
		seen[r] = true

		w := Window{Range: r, Role: RoleReserved, Slot: -1}
		switch {
		case virtioSlot(r) >= 0:
			w.Role = RoleVirtIO
			w.Slot = virtioSlot(r)
		case r.ContainsAddr(d.PCIECAMBase) && r.Contains(ecamWindow):
			w.Role = RolePCIECAM
		case pciMemory(r):
			w.Role = RolePCIMemory
		case r.ContainsAddr(d.RTCPhysAddr):
			w.Role = RoleRTC
		case wellKnownRoles[r.Base] != RoleReserved:
			w.Role = wellKnownRoles[r.Base]
		}
		table = append(table, w)
	}

	sort.Slice(table, func(i, j int) bool {
		return table[i].Base < table[j].Base
	})
	return table
}

// Platform returns the descriptor's platform identity string.
func (l *Derived) Platform() string { return l.platform }

// Arch returns the descriptor's architecture identity string.
func (l *Derived) Arch() string { return l.arch }

// RAM returns the physical memory extent.
func (l *Derived) RAM() ranges.Range { return l.ram }

// LinearMapWindow returns the virtual range covering all of physical memory
// through the fixed linear offset.
func (l *Derived) LinearMapWindow() ranges.Range {
	return ranges.Range{Base: l.ram.Base + l.linearOffset, Size: l.ram.Size}
}

// KernelMapWindow returns the reserved kernel virtual address-space window.
func (l *Derived) KernelMapWindow() ranges.Range { return l.kernelWindow }

// KernelImage returns the validated kernel image placement.
func (l *Derived) KernelImage() (physBase, virtBase uint64) {
	return l.kernelPhysBase, l.kernelVirtBase
}

// PhysToVirt translates a physical address through the linear mapping.
// Addresses outside physical memory are refused; device windows are not
// reachable through the linear map.
func (l *Derived) PhysToVirt(addr uint64) (uint64, error) {
	if !l.ram.ContainsAddr(addr) {
		return 0, fmt.Errorf("phys %#x: %w", addr, ErrOutOfWindow)
	}
	return addr + l.linearOffset, nil
}

// VirtToPhys inverts PhysToVirt for addresses inside the linear-mapped
// window.
func (l *Derived) VirtToPhys(addr uint64) (uint64, error) {
	phys := addr - l.linearOffset
	if !l.ram.ContainsAddr(phys) {
		return 0, fmt.Errorf("virt %#x: %w", addr, ErrOutOfWindow)
	}
	return phys, nil
}

// PhysToBus translates a physical address to the DMA-visible bus address.
func (l *Derived) PhysToBus(addr uint64) uint64 {
	return addr + l.busOffset
}

// MMIOTable returns the normalized, disjoint, base-sorted device window
// table. The returned slice is a copy.
func (l *Derived) MMIOTable() []Window {
	out := make([]Window, len(l.mmio))
	copy(out, l.mmio)
	return out
}

// PCI returns the derived PCI topology.
func (l *Derived) PCI() PCITopology { return l.pci }

// TimerFrequency returns the fixed system timer rate in Hz.
func (l *Derived) TimerFrequency() uint64 { return l.timerHz }
