package index

import "bytes"

// Int64Key is the key type most tests and the demo CLI use: a plain int64,
// compared numerically rather than by raw byte order (so negative keys
// sort correctly).
type Int64Key struct {
	V int64
}

// CompareTo returns negative/zero/positive for less/equal/greater, per the
// comparator contract every key-comparator pair in this module follows.
func (k Int64Key) CompareTo(other Int64Key) int {
	switch {
	case k.V < other.V:
		return -1
	case k.V > other.V:
		return 1
	default:
		return 0
	}
}

// GenericKey is the direct analogue of the original C++ template's
// GenericKey<N>: a fixed-width byte array, compared purely by byte order,
// for composite or non-integer keys. Go generics have no value-parameter
// equivalent of the C++ template's compile-time N, so this module fixes
// the width at 16 bytes — wide enough to hold, say, two packed int64
// columns — rather than generating one struct per width.
type GenericKey [16]byte

func (k GenericKey) CompareTo(other GenericKey) int {
	return bytes.Compare(k[:], other[:])
}

// Comparator is the three-way comparison object every tree is constructed
// with — kept as a standalone object rather than a method on Key, per the
// design note that generic keys should carry comparison as an injected
// comparator, not a language ordering default.
type Comparator[K any] func(a, b K) int

// Int64Comparator compares Int64Key values.
func Int64Comparator(a, b Int64Key) int { return a.CompareTo(b) }

// GenericKeyComparator compares GenericKey values.
func GenericKeyComparator(a, b GenericKey) int { return a.CompareTo(b) }
