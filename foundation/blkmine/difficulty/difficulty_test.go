package difficulty_test

import (
	"math/big"
	"testing"

	"github.com/pktlabs/blkmine/foundation/blkmine/difficulty"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestCompactRoundTrip(t *testing.T) {
	type table struct {
		name    string
		compact uint32
	}

	tt := []table{
		{"max_target", 0x207fffff},
		{"bitcoin_genesis", 0x1d00ffff},
		{"mid_range", 0x1b0404cb},
		{"small_exponent", 0x03123456},
	}

	t.Log("Given the need to validate compact target conversions.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling compact value %#x for %s.", testID, tst.compact, tst.name)
			{
				bn := difficulty.CompactToBig(tst.compact)
				if bn.Sign() <= 0 {
					t.Fatalf("\t%s\tTest %d:\tShould decode to a positive number.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould decode to a positive number.", success, testID)

				back := difficulty.BigToCompact(bn)
				if back != tst.compact {
					t.Fatalf("\t%s\tTest %d:\tShould round trip: got %#x, exp %#x.", failed, testID, back, tst.compact)
				}
				t.Logf("\t%s\tTest %d:\tShould round trip.", success, testID)
			}
		}
	}
}

func TestWorkForTarget(t *testing.T) {
	t.Log("Given the need to validate work calculations.")
	{
		t.Log("\tTest 0:\tWhen comparing an easy target against a hard one.")
		{
			easy := difficulty.WorkForTarget(difficulty.MaxCompactTarget)
			hard := difficulty.WorkForTarget(0x1d00ffff)

			if easy.Cmp(hard) >= 0 {
				t.Fatalf("\t%s\tTest 0:\tShould compute more work for the harder target.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould compute more work for the harder target.", success)

			if easy.Sign() <= 0 || hard.Sign() <= 0 {
				t.Fatalf("\t%s\tTest 0:\tShould compute positive work values.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould compute positive work values.", success)
		}

		t.Log("\tTest 1:\tWhen handling a zero target.")
		{
			work := difficulty.WorkForTarget(0)
			if work.Sign() != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould compute zero work: got %v.", failed, work)
			}
			t.Logf("\t%s\tTest 1:\tShould compute zero work.", success)
		}
	}
}

func TestDegradeAnnouncementTarget(t *testing.T) {
	const annTar = uint32(0x1d00ffff)

	t.Log("Given the need to validate announcement target degradation.")
	{
		t.Log("\tTest 0:\tWhen the announcement has no age.")
		{
			got := difficulty.DegradeAnnouncementTarget(annTar, 0)
			if got != annTar {
				t.Fatalf("\t%s\tTest 0:\tShould keep the target unchanged: got %#x.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the target unchanged.", success)
		}

		t.Log("\tTest 1:\tWhen the announcement has aged one block.")
		{
			got := difficulty.DegradeAnnouncementTarget(annTar, 1)

			exp := new(big.Int).Lsh(difficulty.CompactToBig(annTar), 1)
			if got != difficulty.BigToCompact(exp) {
				t.Fatalf("\t%s\tTest 1:\tShould double the target: got %#x.", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould double the target.", success)
		}

		t.Log("\tTest 2:\tWhen degradation passes the easiest target.")
		{
			got := difficulty.DegradeAnnouncementTarget(annTar, 63)
			if got != difficulty.MaxCompactTarget {
				t.Fatalf("\t%s\tTest 2:\tShould collapse to the easiest target: got %#x.", failed, got)
			}
			t.Logf("\t%s\tTest 2:\tShould collapse to the easiest target.", success)
		}

		t.Log("\tTest 3:\tWhen the announcement is ancient.")
		{
			got := difficulty.DegradeAnnouncementTarget(annTar, 1000)
			if got != difficulty.MaxCompactTarget {
				t.Fatalf("\t%s\tTest 3:\tShould collapse to the easiest target: got %#x.", failed, got)
			}
			t.Logf("\t%s\tTest 3:\tShould collapse to the easiest target.", success)
		}

		t.Log("\tTest 4:\tWhen degrading increases the age.")
		{
			one := difficulty.CompactToBig(difficulty.DegradeAnnouncementTarget(annTar, 1))
			two := difficulty.CompactToBig(difficulty.DegradeAnnouncementTarget(annTar, 2))
			if two.Cmp(one) <= 0 {
				t.Fatalf("\t%s\tTest 4:\tShould produce an easier target with more age.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould produce an easier target with more age.", success)
		}
	}
}
