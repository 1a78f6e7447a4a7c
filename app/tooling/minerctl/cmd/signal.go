package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var privateURL string

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Signal the miner to start a mining operation.",
	Run:   signalRun,
}

func init() {
	rootCmd.AddCommand(signalCmd)
	signalCmd.Flags().StringVarP(&privateURL, "private-url", "p", "http://localhost:9080", "Private url of the miner node.")
}

func signalRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/node/mining/signal", privateURL))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var result struct {
		Status string `json:"status"`
	}
	if err := decoder.Decode(&result); err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Status)
}
