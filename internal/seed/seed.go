package seed

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// #region purposes
// Purpose is the prime multiplier that separates one family of derived streams
// from another. A derived seed must never be reused across purposes.
type Purpose uint64

const (
	Order       Purpose = 2  // coarse ordering of an ordering unit
	Shuffle     Purpose = 3  // fine shuffles inside each cycle
	RandomDraw  Purpose = 5  // Random-equal index draws
	Distinct    Purpose = 7  // Random-distinct per-trial permutations
	Jitter      Purpose = 11 // per-binding jitter offsets
	BlockStart  Purpose = 13 // initial block and sub-list
	BlockChange Purpose = 17 // block / sub-list transition draws
	BlockValue  Purpose = 19 // value draws inside the active sub-list
	Noise       Purpose = 23 // per-object noise seeds
)

func (p Purpose) String() string {
	switch p {
	case Order:
		return "order"
	case Shuffle:
		return "shuffle"
	case RandomDraw:
		return "random"
	case Distinct:
		return "distinct"
	case Jitter:
		return "jitter"
	case BlockStart:
		return "block_start"
	case BlockChange:
		return "block_change"
	case BlockValue:
		return "block_value"
	case Noise:
		return "noise"
	}
	return "unknown"
}
// #endregion purposes

// #region derive
// Derive maps (root, purpose, index) to an independent 64-bit seed. Pure and
// deterministic: the same triple always yields the same seed.
func Derive(root uint64, p Purpose, index int) uint64 {
	return splitmix64(root*uint64(p) + uint64(index))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// NewRoot draws a fresh, non-zero root seed for an unpinned section or pool.
// It is the only source of nondeterminism in a run and is recorded with it.
func NewRoot() uint64 {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			panic("seed: crypto/rand unavailable: " + err.Error())
		}
		if r := binary.LittleEndian.Uint64(b[:]); r != 0 {
			return r
		}
	}
}
// #endregion derive

// #region stream
// Stream is a reproducible pseudo-random sequence built from a derived seed.
type Stream struct {
	r *rand.Rand
}

// NewStream returns the stream for (root, purpose, index).
func NewStream(root uint64, p Purpose, index int) *Stream {
	s := Derive(root, p, index)
	return &Stream{r: rand.New(rand.NewPCG(s, splitmix64(s)))}
}

// IntN returns a uniform int in [0, n).
func (s *Stream) IntN(n int) int { return s.r.IntN(n) }

// Float64 returns a uniform float in [0, 1).
func (s *Stream) Float64() float64 { return s.r.Float64() }

// Perm returns a uniform permutation of [0, n).
func (s *Stream) Perm(n int) []int { return s.r.Perm(n) }

// Bernoulli returns true with probability p. One Float64 is consumed on every
// call, so the stream position does not depend on p.
func (s *Stream) Bernoulli(p float64) bool { return s.r.Float64() < p }

// Uniform returns a uniform float in [-a, a].
func (s *Stream) Uniform(a float64) float64 { return (2*s.r.Float64() - 1) * a }

// Uint64 returns a uniform 64-bit value.
func (s *Stream) Uint64() uint64 { return s.r.Uint64() }
// #endregion stream
