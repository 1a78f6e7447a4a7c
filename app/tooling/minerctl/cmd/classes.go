package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

type classStats struct {
	ID            int    `json:"id"`
	BlockHeight   uint32 `json:"block_height"`
	MinAnnWork    uint32 `json:"min_ann_work"`
	EffectiveWork uint32 `json:"effective_work"`
	ReadyAnns     int    `json:"ready_anns"`
	ReadyBufs     int    `json:"ready_bufs"`
	Dead          bool   `json:"dead"`
}

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Print the current announcement classes.",
	Run:   classesRun,
}

func init() {
	rootCmd.AddCommand(classesCmd)
}

func classesRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/classes/list", url))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var classes []classStats
	if err := decoder.Decode(&classes); err != nil {
		log.Fatal(err)
	}

	for _, cls := range classes {
		fmt.Printf("class[%d] height[%d] work[%#x] effective[%#x] anns[%d] bufs[%d] dead[%t]\n",
			cls.ID, cls.BlockHeight, cls.MinAnnWork, cls.EffectiveWork, cls.ReadyAnns, cls.ReadyBufs, cls.Dead)
	}
}
