package main

import (
	"os"

	"github.com/rustyeddy/marginledger/cmd/ledger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
