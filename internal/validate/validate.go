// Package validate proves that a parsed platform descriptor is internally
// consistent and physically realizable. Every check runs unconditionally and
// appends its findings to a shared bag; nothing short-circuits, so a single
// run reports the complete set of layout problems.
package validate

import (
	"strconv"

	"github.com/axle-os/platdesc/internal/descriptor"
	"github.com/axle-os/platdesc/internal/diagnostics"
	"github.com/axle-os/platdesc/internal/ranges"
)

const (
	// PageSize is the mapping granularity every region must honor.
	PageSize = 0x1000

	// Sv39 kernel half: addresses are sign-extended from bit 38, so the
	// kernel window lives in [0xffff_ffc0_0000_0000, 2^64) and spans at
	// most 2^38 bytes.
	KernelSpaceBase = 0xffff_ffc0_0000_0000
	KernelSpaceSpan = 1 << 38

	// ECAMBusStride mirrors the per-bus config-space span the builder
	// uses when sizing the decoded ECAM window.
	ECAMBusStride = descriptor.ECAMBusStride

	// MaxBusNumber is the PCI 8-bit bus number ceiling.
	MaxBusNumber = 0xff
)

// Run executes every layout check against the descriptor and returns the
// collected diagnostics. The caller decides whether errors are fatal; for
// boot purposes they always are.
func Run(d *descriptor.Descriptor) *diagnostics.Bag {
	c := &checker{d: d, bag: &diagnostics.Bag{}}
	c.physMemory()
	c.kernelPlacement()
	c.addressSpaceWindow()
	c.mmioRegions()
	c.virtioSubset()
	c.pciTopology()
	c.timerFrequency()
	c.busOffset()
	c.rtc()
	return c.bag
}

type checker struct {
	d   *descriptor.Descriptor
	bag *diagnostics.Bag
}

func (c *checker) physMemory() {
	ram := c.d.PhysMemory
	if ram.IsEmpty() {
		c.bag.ErrorRanges(diagnostics.KindSizeMismatch,
			[]ranges.Range{ram}, []string{"phys-memory"},
			"physical memory size must be nonzero")
	}
	if !ram.Aligned(PageSize) {
		c.bag.ErrorRanges(diagnostics.KindMisaligned,
			[]ranges.Range{ram}, []string{"phys-memory"},
			"physical memory base %#x is not page-aligned", ram.Base)
	}
	if !ram.SizeAligned(PageSize) {
		c.bag.ErrorRanges(diagnostics.KindMisaligned,
			[]ranges.Range{ram}, []string{"phys-memory"},
			"physical memory size %#x is not a whole number of pages", ram.Size)
	}
}

func (c *checker) kernelPlacement() {
	d := c.d
	if !d.PhysMemory.ContainsAddr(d.KernelPhysBase) {
		c.bag.ErrorRanges(diagnostics.KindOutOfRange,
			[]ranges.Range{d.PhysMemory}, []string{"phys-memory"},
			"kernel-base-paddr %#x lies outside physical memory", d.KernelPhysBase)
	}
	if d.KernelPhysBase%PageSize != 0 {
		c.bag.Errorf(diagnostics.KindMisaligned,
			"kernel-base-paddr %#x is not page-aligned", d.KernelPhysBase)
	}
	if d.KernelVirtBase%PageSize != 0 {
		c.bag.Errorf(diagnostics.KindMisaligned,
			"kernel-base-vaddr %#x is not page-aligned", d.KernelVirtBase)
	}
	// The kernel image must ride the declared linear offset exactly; a
	// silently divergent per-image offset corrupts every translation.
	if d.KernelVirtBase-d.KernelPhysBase != d.PhysVirtOffset {
		c.bag.Errorf(diagnostics.KindOutOfRange,
			"kernel-base-vaddr %#x minus kernel-base-paddr %#x is %#x, want phys-virt-offset %#x",
			d.KernelVirtBase, d.KernelPhysBase,
			d.KernelVirtBase-d.KernelPhysBase, d.PhysVirtOffset)
	}
}

func (c *checker) addressSpaceWindow() {
	d := c.d
	aspace := d.KernelASpace
	if aspace.IsEmpty() {
		c.bag.ErrorRanges(diagnostics.KindSizeMismatch,
			[]ranges.Range{aspace}, []string{"kernel-aspace"},
			"kernel address-space window size must be nonzero")
		return
	}
	if aspace.Base < KernelSpaceBase {
		c.bag.ErrorRanges(diagnostics.KindOutOfRange,
			[]ranges.Range{aspace}, []string{"kernel-aspace"},
			"kernel-aspace-base %#x is not a canonical Sv39 kernel address (< %#x)",
			aspace.Base, uint64(KernelSpaceBase))
	}
	if aspace.Size > KernelSpaceSpan {
		c.bag.ErrorRanges(diagnostics.KindSizeMismatch,
			[]ranges.Range{aspace}, []string{"kernel-aspace"},
			"kernel-aspace-size %#x exceeds the Sv39 kernel span %#x",
			aspace.Size, uint64(KernelSpaceSpan))
	}
	if !aspace.ContainsAddr(d.KernelVirtBase) {
		c.bag.ErrorRanges(diagnostics.KindOutOfRange,
			[]ranges.Range{aspace}, []string{"kernel-aspace"},
			"kernel-base-vaddr %#x falls outside the kernel address-space window",
			d.KernelVirtBase)
	}
}

func (c *checker) mmioRegions() {
	regions := c.d.MMIORegions
	for i, r := range regions {
		if r.IsEmpty() {
			continue // disabled window, dropped during normalization
		}
		if !r.Aligned(PageSize) {
			c.bag.ErrorRanges(diagnostics.KindMisaligned,
				[]ranges.Range{r}, []string{mmioLabel(i)},
				"mmio region base %#x is not page-aligned", r.Base)
		}
		if !r.SizeAligned(PageSize) {
			c.bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.SeverityWarning,
				Kind:     diagnostics.KindMisaligned,
				Message:  "mmio region size is not a whole number of pages",
				Ranges:   []ranges.Range{r},
				Labels:   []string{mmioLabel(i)},
			})
		}
	}

	// Conflicts are between distinct windows only; identical duplicate
	// declarations collapse during normalization.
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a == b || !a.Overlaps(b) {
				continue
			}
			c.bag.ErrorRanges(diagnostics.KindOverlap,
				[]ranges.Range{a, b},
				[]string{mmioLabel(i), mmioLabel(j)},
				"mmio regions overlap")
		}
	}

	// Devices must never alias RAM. Adjacency (a window ending exactly
	// where RAM begins) is legitimate on qemu-virt and stays silent.
	ram := c.d.PhysMemory
	for _, w := range ranges.MergeAdjacent(regions) {
		if w.Overlaps(ram) {
			c.bag.ErrorRanges(diagnostics.KindOverlap,
				[]ranges.Range{w, ram},
				[]string{"mmio", "phys-memory"},
				"mmio window overlaps physical memory")
		}
	}
}

func (c *checker) virtioSubset() {
	for i, v := range c.d.VirtIORegions {
		if identicalIn(v, c.d.MMIORegions) {
			continue
		}
		c.bag.ErrorRanges(diagnostics.KindVirtioMismatch,
			[]ranges.Range{v},
			[]string{virtioLabel(i)},
			"virtio region is not byte-identical to any declared mmio region")
	}
}

func (c *checker) pciTopology() {
	d := c.d
	if d.PCIBusEnd > MaxBusNumber {
		c.bag.Errorf(diagnostics.KindBusRangeInvalid,
			"pci-bus-end %#x exceeds the 8-bit bus number ceiling %#x",
			d.PCIBusEnd, uint64(MaxBusNumber))
	} else {
		c.checkECAM()
	}

	// The three host-bridge windows must not alias each other...
	for i := 0; i < len(d.PCIRanges); i++ {
		for j := i + 1; j < len(d.PCIRanges); j++ {
			a, b := d.PCIRanges[i], d.PCIRanges[j]
			if !a.Window.Overlaps(b.Window) {
				continue
			}
			c.bag.ErrorRanges(diagnostics.KindOverlap,
				[]ranges.Range{a.Window, b.Window},
				[]string{"pci-" + a.Kind.String(), "pci-" + b.Kind.String()},
				"pci ranges overlap")
		}
	}

	// ...nor any non-PCI device window or RAM. An mmio region that is
	// byte-identical to a pci window is that window (the PCI memory range
	// is commonly declared in both lists), and the ECAM region is PCI's
	// own config space.
	ecam := c.ecamRegion()
	isPCIOwned := func(r ranges.Range) bool {
		if r == ecam {
			return true
		}
		for _, pr := range d.PCIRanges {
			if r == pr.Window {
				return true
			}
		}
		return false
	}
	for _, pr := range d.PCIRanges {
		for i, r := range d.MMIORegions {
			if !pr.Window.Overlaps(r) || isPCIOwned(r) {
				continue
			}
			c.bag.ErrorRanges(diagnostics.KindOverlap,
				[]ranges.Range{pr.Window, r},
				[]string{"pci-" + pr.Kind.String(), mmioLabel(i)},
				"pci range overlaps a non-pci mmio region")
		}
		if pr.Window.Overlaps(d.PhysMemory) {
			c.bag.ErrorRanges(diagnostics.KindOverlap,
				[]ranges.Range{pr.Window, d.PhysMemory},
				[]string{"pci-" + pr.Kind.String(), "phys-memory"},
				"pci range overlaps physical memory")
		}
	}
}

// ecamRegion returns the declared mmio region containing pci-ecam-base, or
// the zero Range if there is none.
func (c *checker) ecamRegion() ranges.Range {
	for _, r := range c.d.MMIORegions {
		if r.ContainsAddr(c.d.PCIECAMBase) {
			return r
		}
	}
	return ranges.Range{}
}

func (c *checker) checkECAM() {
	d := c.d
	required := (d.PCIBusEnd + 1) * ECAMBusStride
	region := c.ecamRegion()
	if region.IsEmpty() {
		c.bag.Errorf(diagnostics.KindOutOfRange,
			"pci-ecam-base %#x is not inside any declared mmio region", d.PCIECAMBase)
		return
	}
	want := ranges.Range{Base: d.PCIECAMBase, Size: required}
	if !region.Contains(want) {
		c.bag.ErrorRanges(diagnostics.KindSizeMismatch,
			[]ranges.Range{region, want},
			[]string{"pci-ecam", "required"},
			"ecam region covers %#x bytes past its window start, need %#x for buses 0-%#x",
			region.End()-d.PCIECAMBase, required, d.PCIBusEnd)
	}
}

func (c *checker) timerFrequency() {
	if c.d.TimerFrequency == 0 {
		c.bag.Errorf(diagnostics.KindZeroFrequency,
			"timer-frequency must be nonzero")
	}
}

func (c *checker) busOffset() {
	d := c.d
	if d.PhysBusOffset == 0 || d.PhysMemory.IsEmpty() {
		return
	}
	// Every DMA-visible RAM address must survive the bus translation
	// without wrapping.
	last := d.PhysMemory.End() - 1
	if last+d.PhysBusOffset < last {
		c.bag.ErrorRanges(diagnostics.KindOutOfRange,
			[]ranges.Range{d.PhysMemory}, []string{"phys-memory"},
			"phys-bus-offset %#x wraps the bus address of the top of physical memory",
			d.PhysBusOffset)
	}
}

func (c *checker) rtc() {
	for _, r := range c.d.MMIORegions {
		if r.ContainsAddr(c.d.RTCPhysAddr) {
			return
		}
	}
	c.bag.Warnf(diagnostics.KindOutOfRange,
		"rtc-paddr %#x is not covered by any declared mmio region", c.d.RTCPhysAddr)
}

func identicalIn(r ranges.Range, set []ranges.Range) bool {
	for _, o := range set {
		if o == r {
			return true
		}
	}
	return false
}

func mmioLabel(i int) string {
	return "mmio-regions[" + strconv.Itoa(i) + "]"
}

func virtioLabel(i int) string {
	return "virtio-mmio-regions[" + strconv.Itoa(i) + "]"
}
