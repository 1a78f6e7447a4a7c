// Package difficulty provides compact-target arithmetic for announcements
// and block proofs. Targets use the bitcoin compact ("bits") representation
// where a lower value represents a harder, more valuable target.
package difficulty

import (
	"math/big"
)

// MaxCompactTarget is the easiest target allowed in the system. Any target
// that degrades past this point is worthless.
const MaxCompactTarget uint32 = 0x207fffff

// oneLsh256 is 1 shifted left 256 bits, used when computing work values.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CompactToBig converts a compact representation of a 256 bit number to a
// big.Int. The representation is mantissa/exponent based like IEEE754:
// the high byte is the exponent (byte length of the number) and the low
// 23 bits are the mantissa.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	// When the exponent is 3 or less, the mantissa represents the full
	// value, shifted down accordingly.
	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact converts a big.Int to a compact representation. Precision is
// limited to the 23 bit mantissa, so values round toward zero.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// When the sign bit of the mantissa is set, shift it down one byte and
	// bump the exponent so the number decodes positive.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}

	return compact
}

// WorkForTarget returns the expected number of hash attempts needed to find
// a hash at or below the specified compact target.
func WorkForTarget(compact uint32) *big.Int {
	target := CompactToBig(compact)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denom := new(big.Int).Add(target, big.NewInt(1))
	return denom.Div(oneLsh256, denom)
}

// DegradeAnnouncementTarget returns the effective target of an announcement
// that was minted ageBlocks blocks ago. The target doubles with every block
// of age, making aged announcements progressively less valuable, until it
// collapses to MaxCompactTarget.
func DegradeAnnouncementTarget(annTar uint32, ageBlocks uint32) uint32 {
	if ageBlocks == 0 {
		return annTar
	}
	if ageBlocks >= 64 {
		return MaxCompactTarget
	}

	target := CompactToBig(annTar)
	target.Lsh(target, uint(ageBlocks))

	if target.Cmp(CompactToBig(MaxCompactTarget)) >= 0 {
		return MaxCompactTarget
	}

	return BigToCompact(target)
}
