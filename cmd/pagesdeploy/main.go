package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagesdeploy/cmd/pagesdeploy/commands"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Must(cli,
		kong.Name("pagesdeploy"),
		kong.Description("Build a single-page site with its search index and publish it to a hosting branch."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = kctx.Run(&commands.Global{Stdout: os.Stdout}, cli)
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
