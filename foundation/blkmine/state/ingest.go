package state

import (
	"github.com/pktlabs/blkmine/foundation/blkmine/annclass"
)

// SubmitAnns absorbs a batch of announcements that all share the specified
// classification. It returns how many of the batch were accepted. A partial
// count is not a failure: it means the buffer pool ran dry, and the caller
// should resubmit the remainder once mining returns buffers to the pool.
func (s *State) SubmitAnns(hw annclass.HeightWork, anns [][]byte) (int, error) {
	if len(anns) == 0 {
		return 0, nil
	}

	// Assign each announcement its location in the miner's announcement
	// table. The indexes travel with the hashes into the buffers so proofs
	// can refer back to the announcement data.
	base := s.annIndex.Add(uint32(len(anns))) - uint32(len(anns))
	indexes := make([]uint32, len(anns))
	for i := range indexes {
		indexes[i] = base + uint32(i)
	}

	total := 0
	for {
		cls, err := s.classFor(hw)
		if err != nil {
			return total, err
		}

		for {
			spare := s.allocBuf()

			consumed, leftover := cls.PushAnns(anns, indexes, spare)
			total += consumed
			anns = anns[consumed:]
			indexes = indexes[consumed:]

			if leftover != nil {
				s.ReleaseBuf(leftover)
			}

			if len(anns) == 0 {
				return total, nil
			}

			// The class consumed the spare and still has batch left; draw
			// another buffer. When the pool is dry, report the partial count.
			if spare == nil {
				s.evHandler("state: SubmitAnns: pool drained: class[%d] accepted[%d] dropped[%d]", cls.ID, total, len(anns))
				return total, nil
			}

			// A live class given a spare always absorbs at least one entry,
			// so consuming nothing means the class was reaped underneath
			// this handle. Resolve a fresh class for the remainder.
			if consumed == 0 {
				break
			}
		}
	}
}

// TotalReadyAnns returns the number of announcements sitting in frozen
// buffers across every class.
func (s *State) TotalReadyAnns() int {
	var total int
	for _, cls := range s.liveClasses() {
		total += cls.ReadyAnns()
	}

	return total
}
