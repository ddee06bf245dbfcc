package gcircle

import "time"

// Generation is the monotonic version number of a circle.
//
// The low 32 bits are a sequence number.
// The high bits hold an epoch derived from wall-clock time
// the first time the generation is incremented,
// so that independently reset circles are unlikely to collide.
type Generation uint64

const (
	generationEpochShift = 32
	generationEpochMask  = 1<<31 - 1

	// MaxGeneration is the largest generation with a 31-bit epoch.
	MaxGeneration Generation = 1<<63 - 1
)

// Epoch returns the high 31 bits of g.
func (g Generation) Epoch() uint32 {
	return uint32(g>>generationEpochShift) & generationEpochMask
}

// Sequence returns the low 32 bits of g.
func (g Generation) Sequence() uint32 {
	return uint32(g)
}

// Next returns the generation following g.
// If g has no epoch yet, the epoch is set from now first.
func (g Generation) Next(now time.Time) Generation {
	if g < 1<<generationEpochShift {
		g |= epochFromTime(now) << generationEpochShift
	}
	return g + 1
}

// Reset returns the first generation of an emptied circle
// whose previous generation was g.
//
// The result is strictly greater than g,
// even if now has not advanced or has moved backwards since g was produced.
// Once the epoch is at its maximum, the sequence advances instead;
// [MaxGeneration] is returned unchanged.
func (g Generation) Reset(now time.Time) Generation {
	next := Generation(0).Next(now)
	if next > g {
		return next
	}

	if g.Epoch() < generationEpochMask {
		// Force the epoch forward and restart the sequence.
		return Generation(g.Epoch()+1)<<generationEpochShift | 1
	}

	if g >= MaxGeneration {
		return MaxGeneration
	}
	return g + 1
}

func epochFromTime(t time.Time) Generation {
	u := t.Unix()
	if u < 0 {
		return 0
	}
	return Generation(uint64(u)>>1) & generationEpochMask
}
