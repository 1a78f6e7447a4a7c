// This program provides a command line tool for interacting with a running
// miner node.
package main

import (
	"github.com/pktlabs/blkmine/app/tooling/minerctl/cmd"
)

func main() {
	cmd.Execute()
}
