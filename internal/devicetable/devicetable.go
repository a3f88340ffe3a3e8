// Package devicetable is the static table of known flight-board variants.
// It replaces the sentinel-row lookup pattern with an explicit sum type:
// the absence of a DeviceKind (rather than a null/zero row) signals
// "unsupported device".
package devicetable

import (
	"fmt"
	"regexp"
	"strconv"
)

// DeviceKind tags a known board variant.
type DeviceKind int

const (
	None DeviceKind = iota
	MKBL
	MKFL
	FLYMU
	CHIMERA
	TEENSY
)

func (k DeviceKind) String() string {
	switch k {
	case MKBL:
		return "mkbl"
	case MKFL:
		return "mkfl"
	case FLYMU:
		return "flymu"
	case CHIMERA:
		return "chimera"
	case TEENSY:
		return "teensy"
	default:
		return "none"
	}
}

// Spec describes the fixed characteristics of a board variant.
type Spec struct {
	Kind      DeviceKind
	Template  *regexp.Regexp // matches "<vendor><name><rev>" identity strings
	MinRev    float64
	GyroRes   float64 // units per LSB
	AccelRes  float64
	MagRes    float64
	HasTemp   bool
	TempRes   float64
	TempOff   float64
	SupportsPID bool
}

var table = []Spec{
	{
		Kind:     MKBL,
		Template: regexp.MustCompile(`^mkbl([0-9]+(?:\.[0-9]+)?)$`),
		MinRev:   1.0,
		GyroRes:  0.0625,
		AccelRes: 0.0098,
		MagRes:   0.15,
	},
	{
		Kind:     MKFL,
		Template: regexp.MustCompile(`^mkfl([0-9]+(?:\.[0-9]+)?)$`),
		MinRev:   1.0,
		GyroRes:  0.0625,
		AccelRes: 0.0098,
		MagRes:   0.15,
	},
	{
		Kind:     FLYMU,
		Template: regexp.MustCompile(`^flymu([0-9]+(?:\.[0-9]+)?)$`),
		MinRev:   1.0,
		GyroRes:  0.0305,
		AccelRes: 0.0048,
		MagRes:   0.10,
	},
	{
		Kind:        CHIMERA,
		Template:    regexp.MustCompile(`^chimera([0-9]+(?:\.[0-9]+)?)$`),
		MinRev:      1.1,
		GyroRes:     0.0175,
		AccelRes:    0.0024,
		MagRes:      0.10,
		HasTemp:     true,
		TempRes:     0.125,
		TempOff:     21.0,
	},
	{
		Kind:        TEENSY,
		Template:    regexp.MustCompile(`^teensy([0-9]+(?:\.[0-9]+)?)$`),
		MinRev:      2.0,
		GyroRes:     0.0153,
		AccelRes:    0.00098,
		MagRes:      0.10,
		SupportsPID: true,
	},
}

// Identify matches an identity string (e.g. "chimera1.1") against the
// device table and returns the matching Spec plus its parsed firmware
// revision. ok is false when no template matches.
func Identify(identity string) (spec Spec, rev float64, ok bool) {
	for _, s := range table {
		m := s.Template.FindStringSubmatch(identity)
		if m == nil {
			continue
		}
		rev, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return s, rev, true
	}
	return Spec{}, 0, false
}

// Lookup returns the Spec for a known DeviceKind. The zero value and ok=false
// are returned for None or any unrecognized kind.
func Lookup(kind DeviceKind) (Spec, bool) {
	for _, s := range table {
		if s.Kind == kind {
			return s, true
		}
	}
	return Spec{}, false
}

// MinRevString formats a Spec's minimum revision for error messages.
func (s Spec) MinRevString() string {
	return fmt.Sprintf("%.1f", s.MinRev)
}
