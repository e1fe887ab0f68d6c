// Package platform is the boundary between the descriptor pipeline and its
// consumers. It runs decode, parse, validate, and derive as one step and
// exposes the derived layout through a narrow facade; the raw descriptor
// never leaves this package's callees.
package platform

import (
	"github.com/axle-os/platdesc/internal/descriptor"
	"github.com/axle-os/platdesc/internal/diagnostics"
	"github.com/axle-os/platdesc/internal/layout"
	"github.com/axle-os/platdesc/internal/ranges"
	"github.com/axle-os/platdesc/internal/validate"
)

// Platform is the immutable facade handed to the boot-time memory manager
// and the device-discovery subsystem. Any number of threads may read it
// concurrently; nothing mutates after construction.
type Platform struct {
	derived *layout.Derived
}

// Load reads, parses, validates, and derives a descriptor file. The error
// is non-nil only for I/O and document-syntax failures; layout problems
// come back as diagnostics with a nil Platform. A valid layout may still
// carry warning diagnostics.
func Load(path string) (*Platform, []diagnostics.Diagnostic, error) {
	fields, err := descriptor.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	p, diags := FromFields(fields)
	return p, diags, nil
}

// FromFields runs the pipeline on an already-decoded field map.
func FromFields(fields map[string]any) (*Platform, []diagnostics.Diagnostic) {
	bag := &diagnostics.Bag{}
	for _, name := range descriptor.UnknownFields(fields) {
		bag.Warnf(diagnostics.KindUnknownField, "unknown field %q", name)
	}

	d, parseErrs := descriptor.Parse(fields)
	if len(parseErrs) > 0 {
		for _, pe := range parseErrs {
			bag.Errorf(diagnostics.KindBadField, "%s", pe.Error())
		}
		return nil, bag.Diagnostics()
	}

	for _, found := range validate.Run(d).Diagnostics() {
		bag.Add(found)
	}
	if bag.HasErrors() {
		return nil, bag.Diagnostics()
	}
	return &Platform{derived: layout.Build(d)}, bag.Diagnostics()
}

// Name returns the descriptor's platform identity string.
func (p *Platform) Name() string { return p.derived.Platform() }

// Arch returns the descriptor's architecture identity string.
func (p *Platform) Arch() string { return p.derived.Arch() }

// RAM returns the physical memory extent.
func (p *Platform) RAM() ranges.Range { return p.derived.RAM() }

// LinearMapWindow returns the virtual window the linear mapping occupies.
func (p *Platform) LinearMapWindow() ranges.Range { return p.derived.LinearMapWindow() }

// KernelMapWindow returns the reserved kernel virtual address-space window.
func (p *Platform) KernelMapWindow() ranges.Range { return p.derived.KernelMapWindow() }

// KernelImage returns the kernel image placement.
func (p *Platform) KernelImage() (physBase, virtBase uint64) { return p.derived.KernelImage() }

// MMIOTable returns the normalized device window table, base-sorted.
func (p *Platform) MMIOTable() []layout.Window { return p.derived.MMIOTable() }

// PCI returns the derived PCI topology.
func (p *Platform) PCI() layout.PCITopology { return p.derived.PCI() }

// TimerFrequency returns the fixed timer rate in Hz.
func (p *Platform) TimerFrequency() uint64 { return p.derived.TimerFrequency() }

// PhysToVirt translates a RAM address through the linear mapping.
func (p *Platform) PhysToVirt(addr uint64) (uint64, error) { return p.derived.PhysToVirt(addr) }

// VirtToPhys inverts PhysToVirt.
func (p *Platform) VirtToPhys(addr uint64) (uint64, error) { return p.derived.VirtToPhys(addr) }

// PhysToBus translates a physical address to its DMA-visible bus address.
func (p *Platform) PhysToBus(addr uint64) uint64 { return p.derived.PhysToBus(addr) }
