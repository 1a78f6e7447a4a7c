package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ClassStats represents the queryable view of one announcement class.
type ClassStats struct {
	ID            int         `json:"id"`
	BlockHash     common.Hash `json:"block_hash"`
	BlockHeight   uint32      `json:"block_height"`
	MinAnnWork    uint32      `json:"min_ann_work"`
	EffectiveWork uint32      `json:"effective_work"`
	ReadyAnns     int         `json:"ready_anns"`
	ReadyBufs     int         `json:"ready_bufs"`
	Dead          bool        `json:"dead"`
}

// Stats represents the queryable view of the whole classifier.
type Stats struct {
	NextHeight uint32 `json:"next_height"`
	Classes    int    `json:"classes"`
	ReadyAnns  int    `json:"ready_anns"`
	PoolFree   int    `json:"pool_free"`
}

// QueryClasses returns the stats for every live class, ordered by class id.
func (s *State) QueryClasses() []ClassStats {
	nextHeight := s.nextHeight.Load()

	classes := s.liveClasses()
	stats := make([]ClassStats, 0, len(classes))

	for _, cls := range classes {
		anns, bufs := cls.ReadyAnnsBufs()
		stats = append(stats, ClassStats{
			ID:            cls.ID,
			BlockHash:     cls.BlockHash(),
			BlockHeight:   cls.BlockHeight(),
			MinAnnWork:    cls.MinAnnWork(),
			EffectiveWork: cls.EffectiveWork(nextHeight),
			ReadyAnns:     anns,
			ReadyBufs:     bufs,
			Dead:          cls.IsDead(),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].ID < stats[j].ID
	})

	return stats
}

// QueryStats returns the aggregate view of the classifier.
func (s *State) QueryStats() Stats {
	return Stats{
		NextHeight: s.nextHeight.Load(),
		Classes:    len(s.liveClasses()),
		ReadyAnns:  s.TotalReadyAnns(),
		PoolFree:   s.PoolFree(),
	}
}
