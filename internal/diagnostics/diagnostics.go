// Package diagnostics provides the error taxonomy and collection machinery
// for platform-descriptor validation. Checks append to a Bag instead of
// returning on the first failure, so one run reports the complete set of
// problems with a layout.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/axle-os/platdesc/internal/ranges"
)

// Severity is the level of a diagnostic. Only Error blocks the pipeline.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Kind classifies what a diagnostic is about.
type Kind int

const (
	// KindBadField covers malformed descriptor fields surfaced at parse
	// time: missing fields, wrong arity, unparseable literals.
	KindBadField Kind = iota

	// KindMisaligned: an address or size is not a whole number of pages.
	KindMisaligned

	// KindOutOfRange: an address falls outside the window that must
	// contain it.
	KindOutOfRange

	// KindOverlap: two regions that must be disjoint share addresses.
	KindOverlap

	// KindSizeMismatch: a region is smaller than its derived minimum.
	KindSizeMismatch

	// KindBusRangeInvalid: a PCI bus number exceeds the 8-bit ceiling.
	KindBusRangeInvalid

	// KindZeroFrequency: the timer frequency is zero.
	KindZeroFrequency

	// KindVirtioMismatch: a VirtIO region is not byte-identical to any
	// declared MMIO region.
	KindVirtioMismatch

	// KindUnknownField: a document key the parser does not recognize.
	KindUnknownField
)

func (k Kind) String() string {
	switch k {
	case KindBadField:
		return "bad-field"
	case KindMisaligned:
		return "misaligned"
	case KindOutOfRange:
		return "out-of-range"
	case KindOverlap:
		return "overlap"
	case KindSizeMismatch:
		return "size-mismatch"
	case KindBusRangeInvalid:
		return "bus-range-invalid"
	case KindZeroFrequency:
		return "zero-frequency"
	case KindVirtioMismatch:
		return "virtio-mismatch"
	case KindUnknownField:
		return "unknown-field"
	default:
		return "unknown"
	}
}

// Diagnostic is one finding about a descriptor. Ranges and Labels run in
// parallel: Labels[i] names Ranges[i] (e.g. "mmio-regions[3]", "uart").
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	Ranges   []ranges.Range
	Labels   []string
}

func (d Diagnostic) String() string {
	msg := fmt.Sprintf("%s[%s]: %s", d.Severity, d.Kind, d.Message)
	for i, r := range d.Ranges {
		label := ""
		if i < len(d.Labels) {
			label = d.Labels[i] + " "
		}
		msg += fmt.Sprintf("\n    %s%s", label, r)
	}
	return msg
}

// MarshalJSON renders enum fields as their string names for tool output.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	type jsonRange struct {
		Base string `json:"base"`
		Size string `json:"size"`
	}
	out := struct {
		Severity string      `json:"severity"`
		Kind     string      `json:"kind"`
		Message  string      `json:"message"`
		Ranges   []jsonRange `json:"ranges,omitempty"`
		Labels   []string    `json:"labels,omitempty"`
	}{
		Severity: d.Severity.String(),
		Kind:     d.Kind.String(),
		Message:  d.Message,
		Labels:   d.Labels,
	}
	for _, r := range d.Ranges {
		out.Ranges = append(out.Ranges, jsonRange{
			Base: fmt.Sprintf("%#x", r.Base),
			Size: fmt.Sprintf("%#x", r.Size),
		})
	}
	return json.Marshal(out)
}

// Bag collects diagnostics across all validation checks.
type Bag struct {
	diags []Diagnostic
}

// Add appends a prebuilt diagnostic.
func (b *Bag) Add(d Diagnostic) {
	b.diags = append(b.diags, d)
}

// Errorf records an error-severity diagnostic.
func (b *Bag) Errorf(kind Kind, format string, args ...any) {
	b.diags = append(b.diags, Diagnostic{
		Severity: SeverityError,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ErrorRanges records an error-severity diagnostic naming the offending
// ranges.
func (b *Bag) ErrorRanges(kind Kind, rs []ranges.Range, labels []string, format string, args ...any) {
	b.diags = append(b.diags, Diagnostic{
		Severity: SeverityError,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Ranges:   rs,
		Labels:   labels,
	})
}

// Warnf records a warning-severity diagnostic.
func (b *Bag) Warnf(kind Kind, format string, args ...any) {
	b.diags = append(b.diags, Diagnostic{
		Severity: SeverityWarning,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any collected diagnostic is error-severity.
func (b *Bag) HasErrors() bool {
	for _, d := range b.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of collected diagnostics.
func (b *Bag) Len() int {
	return len(b.diags)
}

// Diagnostics returns the collected findings, errors first, then by kind,
// then by message, for stable reports.
func (b *Bag) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(b.diags))
	copy(out, b.diags)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity < out[j].Severity
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Message < out[j].Message
	})
	return out
}
