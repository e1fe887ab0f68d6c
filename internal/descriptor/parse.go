package descriptor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/axle-os/platdesc/internal/ranges"
)

// supportedFormat is the format-version constraint this parser understands.
// Bumped on any incompatible field-set change.
var supportedFormat = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// knownFields is the complete field set; anything else in the document is
// reported by UnknownFields so a typo'd field name does not silently fall
// back to a default.
var knownFields = map[string]bool{
	"format-version":      true,
	"platform":            true,
	"arch":                true,
	"phys-memory-base":    true,
	"phys-memory-size":    true,
	"kernel-base-paddr":   true,
	"kernel-base-vaddr":   true,
	"phys-virt-offset":    true,
	"phys-bus-offset":     true,
	"kernel-aspace-base":  true,
	"kernel-aspace-size":  true,
	"mmio-regions":        true,
	"virtio-mmio-regions": true,
	"pci-ecam-base":       true,
	"pci-bus-end":         true,
	"pci-ranges":          true,
	"timer-frequency":     true,
	"rtc-paddr":           true,
}

// Parse turns a decoded field map into a Descriptor. Every field is checked
// independently and all parse errors are returned together; the Descriptor
// is nil if any field failed.
func Parse(fields map[string]any) (*Descriptor, []*ParseError) {
	p := &parser{fields: fields}

	d := &Descriptor{
		FormatVersion: p.optionalString("format-version"),
		Platform:      p.optionalString("platform"),
		Arch:          p.optionalString("arch"),
	}

	p.checkFormatVersion(d.FormatVersion)

	d.PhysMemory = p.rangeOf("phys-memory-base", "phys-memory-size")
	d.KernelPhysBase = p.uint64Of("kernel-base-paddr")
	d.KernelVirtBase = p.uint64Of("kernel-base-vaddr")
	d.PhysVirtOffset = p.uint64Of("phys-virt-offset")
	d.PhysBusOffset = p.uint64Of("phys-bus-offset")
	d.KernelASpace = p.rangeOf("kernel-aspace-base", "kernel-aspace-size")
	d.MMIORegions = p.rangeListOf("mmio-regions")
	d.VirtIORegions = p.rangeListOf("virtio-mmio-regions")
	d.PCIECAMBase = p.uint64Of("pci-ecam-base")
	d.PCIBusEnd = p.uint64Of("pci-bus-end")
	d.PCIRanges = p.pciRangesOf("pci-ranges")
	d.TimerFrequency = p.uint64Of("timer-frequency")
	d.RTCPhysAddr = p.uint64Of("rtc-paddr")

	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return d, nil
}

// UnknownFields returns the document keys the parser does not recognize,
// sorted for stable reporting.
func UnknownFields(fields map[string]any) []string {
	var unknown []string
	for name := range fields {
		if !knownFields[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

type parser struct {
	fields map[string]any
	errs   []*ParseError
}

func (p *parser) fail(field string, reason ParseReason, detail string, err error) {
	p.errs = append(p.errs, &ParseError{Field: field, Reason: reason, Detail: detail, Err: err})
}

func (p *parser) optionalString(name string) string {
	v, ok := p.fields[name]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.fail(name, ReasonBadType, fmt.Sprintf("expected string, got %T", v), nil)
		return ""
	}
	return s
}

func (p *parser) checkFormatVersion(raw string) {
	if raw == "" {
		return
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		p.fail("format-version", ReasonBadLiteral, raw, err)
		return
	}
	if !supportedFormat.Check(v) {
		p.fail("format-version", ReasonUnsupportedVersion,
			fmt.Sprintf("%s does not satisfy %s", v, supportedFormat), nil)
	}
}

func (p *parser) uint64Of(name string) uint64 {
	v, ok := p.fields[name]
	if !ok {
		p.fail(name, ReasonMissingField, "", nil)
		return 0
	}
	n, err := parseLiteral(v)
	if err != nil {
		p.fail(name, err.Reason, err.Detail, err.Err)
		return 0
	}
	return n
}

func (p *parser) rangeOf(baseField, sizeField string) ranges.Range {
	base := p.uint64Of(baseField)
	size := p.uint64Of(sizeField)
	r, err := ranges.New(base, size)
	if err != nil {
		p.fail(sizeField, ReasonRangeOverflow, "", err)
		return ranges.Range{}
	}
	return r
}

func (p *parser) rangeListOf(name string) []ranges.Range {
	pairs := p.pairListOf(name)
	out := make([]ranges.Range, 0, len(pairs))
	for i, pair := range pairs {
		r, err := ranges.New(pair[0], pair[1])
		if err != nil {
			p.fail(name, ReasonRangeOverflow, fmt.Sprintf("entry %d", i), err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (p *parser) pciRangesOf(name string) []PCIRange {
	pairs := p.pairListOf(name)
	if pairs == nil {
		return nil
	}
	// Positional kinds: PIO, MMIO32, MMIO64.
	if len(pairs) != 3 {
		p.fail(name, ReasonWrongArity,
			fmt.Sprintf("expected 3 windows (pio, mmio32, mmio64), got %d", len(pairs)), nil)
		return nil
	}
	out := make([]PCIRange, 0, 3)
	for i, pair := range pairs {
		r, err := ranges.New(pair[0], pair[1])
		if err != nil {
			p.fail(name, ReasonRangeOverflow, fmt.Sprintf("entry %d", i), err)
			continue
		}
		out = append(out, PCIRange{Kind: PCIRangeKind(i), Window: r})
	}
	return out
}

// pairListOf parses a list-of-[base, size] field into raw integer pairs.
func (p *parser) pairListOf(name string) [][2]uint64 {
	v, ok := p.fields[name]
	if !ok {
		p.fail(name, ReasonMissingField, "", nil)
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		p.fail(name, ReasonBadType, fmt.Sprintf("expected list of pairs, got %T", v), nil)
		return nil
	}
	out := make([][2]uint64, 0, len(list))
	for i, el := range list {
		pair, ok := el.([]any)
		if !ok {
			p.fail(name, ReasonBadType,
				fmt.Sprintf("entry %d: expected [base, size] pair, got %T", i, el), nil)
			continue
		}
		if len(pair) != 2 {
			p.fail(name, ReasonWrongArity,
				fmt.Sprintf("entry %d: expected 2 elements, got %d", i, len(pair)), nil)
			continue
		}
		base, errB := parseLiteral(pair[0])
		if errB != nil {
			p.fail(name, errB.Reason, fmt.Sprintf("entry %d base: %s", i, errB.Detail), errB.Err)
		}
		size, errS := parseLiteral(pair[1])
		if errS != nil {
			p.fail(name, errS.Reason, fmt.Sprintf("entry %d size: %s", i, errS.Detail), errS.Err)
		}
		if errB != nil || errS != nil {
			continue
		}
		out = append(out, [2]uint64{base, size})
	}
	return out
}

// parseLiteral accepts the encodings a decoded document can carry for one
// integer: a string literal ("0x8000_0000", "10_000_000", "42"), a native
// integer, or an integral JSON float.
func parseLiteral(v any) (uint64, *ParseError) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, &ParseError{Reason: ReasonBadLiteral, Detail: "empty literal"}
		}
		// Base 0 gives Go literal syntax: 0x prefix and underscore
		// separators between digits.
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, &ParseError{Reason: ReasonBadLiteral, Detail: x, Err: err}
		}
		return n, nil
	case int64:
		if x < 0 {
			return 0, &ParseError{Reason: ReasonBadLiteral, Detail: fmt.Sprintf("negative value %d", x)}
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, &ParseError{Reason: ReasonBadLiteral, Detail: fmt.Sprintf("negative value %d", x)}
		}
		return uint64(x), nil
	case uint64:
		return x, nil
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, &ParseError{Reason: ReasonBadLiteral, Detail: fmt.Sprintf("non-integral value %v", x)}
		}
		return uint64(x), nil
	default:
		return 0, &ParseError{Reason: ReasonBadType, Detail: fmt.Sprintf("unsupported literal type %T", v)}
	}
}
