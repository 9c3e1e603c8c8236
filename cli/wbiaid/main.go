package main

import (
	"os"

	wbiaidcmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid"
)

func main() {
	cmd := wbiaidcmder.NewWbiaidCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
