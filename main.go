// Package main is the entry point for playbridge.
package main

import (
	"github.com/playbridge/playbridge/cmd"
	"github.com/playbridge/playbridge/config"
	"github.com/playbridge/playbridge/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
