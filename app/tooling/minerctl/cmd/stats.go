package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

type stats struct {
	NextHeight uint32 `json:"next_height"`
	Classes    int    `json:"classes"`
	ReadyAnns  int    `json:"ready_anns"`
	PoolFree   int    `json:"pool_free"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the aggregate classifier stats.",
	Run:   statsRun,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/stats", url))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var stats stats
	if err := decoder.Decode(&stats); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Next Height:", stats.NextHeight)
	fmt.Println("Classes:", stats.Classes)
	fmt.Println("Ready Anns:", stats.ReadyAnns)
	fmt.Println("Pool Free:", stats.PoolFree)
}
