// Command pricefeed publishes price update events and seeds holdings for
// local runs of the quote cache.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&publishCmd{}, "kafka")
	commander.Register(&replayCmd{}, "kafka")
	commander.Register(&seedCmd{}, "mysql")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
