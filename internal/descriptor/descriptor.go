// Package descriptor defines the typed platform-descriptor model and the
// syntactic parser that builds it from a decoded configuration document.
//
// Parsing here is strictly per-field: each value is checked for presence,
// arity, and literal well-formedness in isolation. Cross-field consistency
// (overlap, alignment, containment) is the validate package's job.
package descriptor

import (
	"github.com/axle-os/platdesc/internal/ranges"
)

// ECAMBusStride is the PCI config-space span decoded per bus number:
// 32 devices x 8 functions x 4 KiB.
const ECAMBusStride = 32 * 8 * 0x1000

// PCIRangeKind identifies one of the three PCI host-bridge window kinds, in
// the order they appear in the pci-ranges field.
type PCIRangeKind int

const (
	PCIRangePIO PCIRangeKind = iota
	PCIRangeMMIO32
	PCIRangeMMIO64
)

func (k PCIRangeKind) String() string {
	switch k {
	case PCIRangePIO:
		return "pio"
	case PCIRangeMMIO32:
		return "mmio32"
	case PCIRangeMMIO64:
		return "mmio64"
	default:
		return "unknown"
	}
}

// PCIRange is one host-bridge window with its kind tag.
type PCIRange struct {
	Kind   PCIRangeKind
	Window ranges.Range
}

// Descriptor is the fully parsed platform descriptor. All quantities are
// plain integers; string-encoded literals never survive past parsing. The
// value is untrusted until the validate package has accepted it.
type Descriptor struct {
	// Identity fields, optional in the document.
	FormatVersion string
	Platform      string
	Arch          string

	// RAM extent.
	PhysMemory ranges.Range

	// Kernel image placement and translation offsets.
	KernelPhysBase uint64
	KernelVirtBase uint64
	PhysVirtOffset uint64
	PhysBusOffset  uint64

	// Reserved kernel virtual window.
	KernelASpace ranges.Range

	// Device windows, in declaration order.
	MMIORegions   []ranges.Range
	VirtIORegions []ranges.Range

	// PCI topology inputs.
	PCIECAMBase uint64
	PCIBusEnd   uint64
	PCIRanges   []PCIRange

	TimerFrequency uint64
	RTCPhysAddr    uint64
}
