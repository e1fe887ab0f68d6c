package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axle-os/platdesc/internal/descriptor"
	"github.com/axle-os/platdesc/internal/diagnostics"
	"github.com/axle-os/platdesc/internal/ranges"
)

// qemuVirt returns the riscv64 qemu-virt descriptor. Mutated per test.
//
// mmio-regions index map: 0 rtc, 1 plic, 2 uart, 3-10 virtio slots,
// 11 pflash, 12 pci ecam, 13 pci memory.
func qemuVirt() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Platform:       "riscv64-qemu-virt",
		Arch:           "riscv64",
		PhysMemory:     ranges.Range{Base: 0x8000_0000, Size: 0x800_0000},
		KernelPhysBase: 0x8020_0000,
		KernelVirtBase: 0xffff_ffc0_8020_0000,
		PhysVirtOffset: 0xffff_ffc0_0000_0000,
		PhysBusOffset:  0,
		KernelASpace:   ranges.Range{Base: 0xffff_ffc0_0000_0000, Size: 0x3f_ffff_f000},
		MMIORegions: []ranges.Range{
			{Base: 0x0010_1000, Size: 0x1000},
			{Base: 0x0c00_0000, Size: 0x21_0000},
			{Base: 0x1000_0000, Size: 0x1000},
			{Base: 0x1000_1000, Size: 0x1000},
			{Base: 0x1000_2000, Size: 0x1000},
			{Base: 0x1000_3000, Size: 0x1000},
			{Base: 0x1000_4000, Size: 0x1000},
			{Base: 0x1000_5000, Size: 0x1000},
			{Base: 0x1000_6000, Size: 0x1000},
			{Base: 0x1000_7000, Size: 0x1000},
			{Base: 0x1000_8000, Size: 0x1000},
			{Base: 0x2000_0000, Size: 0x400_0000},
			{Base: 0x3000_0000, Size: 0x1000_0000},
			{Base: 0x4000_0000, Size: 0x4000_0000},
		},
		VirtIORegions: []ranges.Range{
			{Base: 0x1000_1000, Size: 0x1000},
			{Base: 0x1000_2000, Size: 0x1000},
			{Base: 0x1000_3000, Size: 0x1000},
			{Base: 0x1000_4000, Size: 0x1000},
			{Base: 0x1000_5000, Size: 0x1000},
			{Base: 0x1000_6000, Size: 0x1000},
			{Base: 0x1000_7000, Size: 0x1000},
			{Base: 0x1000_8000, Size: 0x1000},
		},
		PCIECAMBase: 0x3000_0000,
		PCIBusEnd:   0xff,
		PCIRanges: []descriptor.PCIRange{
			{Kind: descriptor.PCIRangePIO, Window: ranges.Range{Base: 0x0300_0000, Size: 0x1_0000}},
			{Kind: descriptor.PCIRangeMMIO32, Window: ranges.Range{Base: 0x4000_0000, Size: 0x4000_0000}},
			{Kind: descriptor.PCIRangeMMIO64, Window: ranges.Range{Base: 0x4_0000_0000, Size: 0x4_0000_0000}},
		},
		TimerFrequency: 10_000_000,
		RTCPhysAddr:    0x10_1000,
	}
}

func kinds(diags []diagnostics.Diagnostic) []diagnostics.Kind {
	out := make([]diagnostics.Kind, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Kind)
	}
	return out
}

func TestQemuVirtIsValid(t *testing.T) {
	bag := Run(qemuVirt())
	assert.False(t, bag.HasErrors())
	assert.Zero(t, bag.Len(), "fixture should produce no findings at all: %v", bag.Diagnostics())
}

func TestMMIOOverlapNamesBothRegions(t *testing.T) {
	d := qemuVirt()
	// Grow the UART window into the first virtio slot.
	d.MMIORegions[2].Size = 0x2000

	bag := Run(d)
	require.True(t, bag.HasErrors())

	var overlap *diagnostics.Diagnostic
	for _, diag := range bag.Diagnostics() {
		if diag.Kind == diagnostics.KindOverlap {
			diag := diag
			overlap = &diag
			break
		}
	}
	require.NotNil(t, overlap, "expected an overlap diagnostic, got %v", bag.Diagnostics())
	assert.Equal(t, []ranges.Range{
		{Base: 0x1000_0000, Size: 0x2000},
		{Base: 0x1000_1000, Size: 0x1000},
	}, overlap.Ranges)
	assert.Equal(t, []string{"mmio-regions[2]", "mmio-regions[3]"}, overlap.Labels)
}

func TestZeroTimerFrequency(t *testing.T) {
	d := qemuVirt()
	d.TimerFrequency = 0

	bag := Run(d)
	require.True(t, bag.HasErrors())
	require.Equal(t, 1, bag.Len())
	assert.Equal(t, diagnostics.KindZeroFrequency, bag.Diagnostics()[0].Kind)
}

func TestPhysMemorySanity(t *testing.T) {
	t.Run("misaligned_base", func(t *testing.T) {
		d := qemuVirt()
		d.PhysMemory.Base += 0x800
		d.KernelPhysBase += 0x800 // keep placement checks quiet
		d.KernelVirtBase += 0x800

		bag := Run(d)
		got := kinds(bag.Diagnostics())
		assert.Contains(t, got, diagnostics.KindMisaligned)
	})

	t.Run("zero_size", func(t *testing.T) {
		d := qemuVirt()
		d.PhysMemory.Size = 0

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindSizeMismatch)
	})
}

func TestKernelPlacement(t *testing.T) {
	t.Run("outside_ram", func(t *testing.T) {
		d := qemuVirt()
		d.KernelPhysBase = 0x9000_0000 // past the 128 MiB of RAM
		d.KernelVirtBase = d.KernelPhysBase + d.PhysVirtOffset

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
	})

	t.Run("offset_divergence", func(t *testing.T) {
		d := qemuVirt()
		d.KernelVirtBase += 0x1000

		bag := Run(d)
		require.True(t, bag.HasErrors())
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
	})

	t.Run("misaligned", func(t *testing.T) {
		d := qemuVirt()
		d.KernelPhysBase += 0x10
		d.KernelVirtBase += 0x10 // offset still matches

		bag := Run(d)
		got := bag.Diagnostics()
		require.Len(t, got, 2)
		assert.Equal(t, diagnostics.KindMisaligned, got[0].Kind)
		assert.Equal(t, diagnostics.KindMisaligned, got[1].Kind)
	})
}

func TestAddressSpaceWindow(t *testing.T) {
	t.Run("kernel_outside_window", func(t *testing.T) {
		d := qemuVirt()
		d.KernelASpace = ranges.Range{Base: 0xffff_ffd0_0000_0000, Size: 0x1000_0000}

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
	})

	t.Run("window_exceeds_sv39_span", func(t *testing.T) {
		d := qemuVirt()
		d.KernelASpace = ranges.Range{Base: 0xffff_ffc0_0000_0000, Size: KernelSpaceSpan + 0x1000}

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindSizeMismatch)
	})

	t.Run("non_canonical_base", func(t *testing.T) {
		d := qemuVirt()
		d.KernelASpace.Base = 0x0000_0040_0000_0000
		d.KernelVirtBase = 0x0000_0040_8020_0000
		d.PhysVirtOffset = d.KernelVirtBase - d.KernelPhysBase

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
	})
}

func TestMMIORAMPolicy(t *testing.T) {
	t.Run("overlap_with_ram_is_error", func(t *testing.T) {
		d := qemuVirt()
		d.MMIORegions = append(d.MMIORegions, ranges.Range{Base: 0x8000_0000, Size: 0x1000})

		bag := Run(d)
		require.True(t, bag.HasErrors())
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOverlap)
	})

	t.Run("adjacency_with_ram_is_fine", func(t *testing.T) {
		d := qemuVirt()
		d.MMIORegions = append(d.MMIORegions, ranges.Range{Base: 0x7fff_f000, Size: 0x1000})

		bag := Run(d)
		assert.False(t, bag.HasErrors(), "%v", bag.Diagnostics())
	})

	t.Run("zero_size_region_ignored", func(t *testing.T) {
		d := qemuVirt()
		d.MMIORegions = append(d.MMIORegions, ranges.Range{Base: 0x8100_0333, Size: 0})

		bag := Run(d)
		assert.Zero(t, bag.Len(), "%v", bag.Diagnostics())
	})
}

func TestVirtioSubset(t *testing.T) {
	d := qemuVirt()
	// Contained in an mmio region but not identical to one.
	d.VirtIORegions[0] = ranges.Range{Base: 0x1000_1000, Size: 0x800}

	bag := Run(d)
	require.True(t, bag.HasErrors())
	got := bag.Diagnostics()
	require.Equal(t, 1, bag.Len())
	assert.Equal(t, diagnostics.KindVirtioMismatch, got[0].Kind)
	assert.Equal(t, []string{"virtio-mmio-regions[0]"}, got[0].Labels)
}

func TestPCIECAM(t *testing.T) {
	t.Run("window_too_small", func(t *testing.T) {
		d := qemuVirt()
		d.MMIORegions[12].Size = 0x800_0000 // half of what 256 buses need

		bag := Run(d)
		require.True(t, bag.HasErrors())
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindSizeMismatch)
	})

	t.Run("required_size_law", func(t *testing.T) {
		// 4096 * 8 * 32 per bus; bus-end is inclusive.
		d := qemuVirt()
		d.PCIBusEnd = 0
		d.MMIORegions[12].Size = ECAMBusStride

		bag := Run(d)
		assert.False(t, bag.HasErrors(), "%v", bag.Diagnostics())

		d.MMIORegions[12].Size = ECAMBusStride - 0x1000
		bag = Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindSizeMismatch)
	})

	t.Run("base_outside_every_region", func(t *testing.T) {
		d := qemuVirt()
		d.PCIECAMBase = 0x0500_0000

		bag := Run(d)
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
	})

	t.Run("bus_end_over_ceiling", func(t *testing.T) {
		d := qemuVirt()
		d.PCIBusEnd = 0x100

		bag := Run(d)
		require.Equal(t, 1, bag.Len())
		assert.Equal(t, diagnostics.KindBusRangeInvalid, bag.Diagnostics()[0].Kind)
	})
}

func TestPCIRanges(t *testing.T) {
	t.Run("pairwise_overlap", func(t *testing.T) {
		d := qemuVirt()
		d.PCIRanges[2].Window = ranges.Range{Base: 0x4800_0000, Size: 0x1000_0000}

		bag := Run(d)
		require.True(t, bag.HasErrors())

		found := false
		for _, diag := range bag.Diagnostics() {
			if diag.Kind == diagnostics.KindOverlap {
				assert.Equal(t, []string{"pci-mmio32", "pci-mmio64"}, diag.Labels)
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("overlap_with_non_pci_mmio", func(t *testing.T) {
		d := qemuVirt()
		d.PCIRanges[0].Window = ranges.Range{Base: 0x0c00_0000, Size: 0x1000} // inside the PLIC

		bag := Run(d)
		require.True(t, bag.HasErrors())
		assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOverlap)
	})
}

func TestBusOffsetWrap(t *testing.T) {
	d := qemuVirt()
	d.PhysBusOffset = 0xffff_ffff_8000_0000

	bag := Run(d)
	require.True(t, bag.HasErrors())
	assert.Contains(t, kinds(bag.Diagnostics()), diagnostics.KindOutOfRange)
}

func TestRTCOutsideRegionsWarns(t *testing.T) {
	d := qemuVirt()
	d.RTCPhysAddr = 0x0500_0000

	bag := Run(d)
	assert.False(t, bag.HasErrors(), "rtc mismatch is a warning, not an error")
	require.Equal(t, 1, bag.Len())
	assert.Equal(t, diagnostics.SeverityWarning, bag.Diagnostics()[0].Severity)
}

func TestAllFailuresCollected(t *testing.T) {
	d := qemuVirt()
	d.TimerFrequency = 0
	d.KernelVirtBase += 0x1000 // offset divergence (still page-aligned)
	d.MMIORegions[2].Size = 0x2000

	bag := Run(d)
	got := kinds(bag.Diagnostics())
	assert.Contains(t, got, diagnostics.KindZeroFrequency)
	assert.Contains(t, got, diagnostics.KindOutOfRange)
	assert.Contains(t, got, diagnostics.KindOverlap)
	assert.GreaterOrEqual(t, bag.Len(), 3)
}
