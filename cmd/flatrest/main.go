package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"YAML configuration file." type:"path" env:"FLATREST_CONFIG" short:"c"`
	LogLevel string `help:"Log level (debug, info, warn, error)." name:"log-level"`
	BaseURL  string `help:"Base URL of the REST service." name:"base-url"`
	Format   string `help:"Output format." enum:"json,tsv" default:"json" short:"f"`
	Strict   bool   `help:"Fail on malformed response lines instead of skipping them."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Info  InfoCmd  `cmd:"" help:"Show release information of a database."`
	List  ListCmd  `cmd:"" help:"List entries of a database."`
	Find  FindCmd  `cmd:"" help:"Search a database by keyword or property."`
	Get   GetCmd   `cmd:"" help:"Retrieve entries in flat-file form."`
	Link  LinkCmd  `cmd:"" help:"Find cross-references between databases."`
	Conv  ConvCmd  `cmd:"" help:"Convert identifiers to another database."`
	Query QueryCmd `cmd:"" help:"Run any operation and parse the result with a named grammar."`
	Serve ServeCmd `cmd:"" help:"Run the HTTP JSON gateway."`
	Prune PruneCmd `cmd:"" help:"Delete old responses from the persistent store."`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("flatrest"),
		kong.Description("Client and gateway for flat-text bioinformatics REST services."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "flatrest: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}
