package main

import "github.com/chainledger/wallet-indexer/cmd"

func main() {
	cmd.Execute()
}
