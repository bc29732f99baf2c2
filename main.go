package main

import "github/chapool/wallet-broker/cmd"

func main() {
	cmd.Execute()
}
