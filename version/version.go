// Package version models the running OS version and the intervals commands are gated on.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Version is a major.minor.micro OS version.
type Version struct {
	Major uint8
	Minor uint8
	Micro uint8
}

func New(major, minor, micro uint8) Version {
	return Version{Major: major, Minor: minor, Micro: micro}
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmp(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmp(v.Minor, other.Minor)
	default:
		return cmp(v.Micro, other.Micro)
	}
}

func cmp(a, b uint8) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Parse reads "major.minor.micro". Missing trailing components are zero.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	var out [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = uint8(n)
	}
	return New(out[0], out[1], out[2]), nil
}

// MarshalText and UnmarshalText let config files carry versions as strings.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Interval is a range of versions, inclusive on both ends. A nil bound is open.
type Interval struct {
	min *Version
	max *Version
}

// All allows every version.
func All() Interval {
	return Interval{}
}

// From allows lo and anything newer.
func From(lo Version) Interval {
	return Interval{min: &lo}
}

// To allows hi and anything older.
func To(hi Version) Interval {
	return Interval{max: &hi}
}

func Between(lo, hi Version) Interval {
	return Interval{min: &lo, max: &hi}
}

func (iv Interval) Contains(v Version) bool {
	if iv.min != nil && v.Less(*iv.min) {
		return false
	}
	if iv.max != nil && iv.max.Less(v) {
		return false
	}
	return true
}

func (iv Interval) String() string {
	lo, hi := "*", "*"
	if iv.min != nil {
		lo = iv.min.String()
	}
	if iv.max != nil {
		hi = iv.max.String()
	}
	return lo + "-" + hi
}

// Matches is the version gate: whether current falls inside interval.
func Matches(current Version, interval Interval) bool {
	return interval.Contains(current)
}

// Gated is anything carrying a version interval.
type Gated interface {
	VersionInterval() Interval
}

// Select returns the first candidate whose interval contains current.
func Select[T Gated](current Version, candidates ...T) (T, bool) {
	for _, c := range candidates {
		if Matches(current, c.VersionInterval()) {
			return c, true
		}
	}
	var zero T
	return zero, false
}

var current atomic.Uint32

func pack(v Version) uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)<<8 | uint32(v.Micro)
}

// SetCurrent records the running OS version. It is set once during startup.
func SetCurrent(v Version) {
	current.Store(pack(v))
}

// Current returns the version recorded by SetCurrent, 0.0.0 if never set.
func Current() Version {
	p := current.Load()
	return New(uint8(p>>16), uint8(p>>8), uint8(p))
}
