// Command ledgerctl manages the position ledger from the terminal.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"

	"investment-tracker/observability"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: cannot read .env: %v", err)
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	Register(commander)

	flag.BoolVar(&plainOutput, "plain", false, "Print raw markdown instead of rendering it")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Parse()

	level := observability.ParseLevel("warn")
	if *verbose {
		level = observability.ParseLevel("debug")
	}
	observability.InitLoggerTo(os.Stderr, false, level)

	os.Exit(int(commander.Execute(context.Background())))
}
