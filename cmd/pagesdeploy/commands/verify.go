package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/site"
)

// VerifyCmd implements the 'verify' command.
type VerifyCmd struct {
	Dir    string `arg:"" help:"Output directory to check" type:"existingdir"`
	Marker string `help:"Search marker index.html must reference; defaults to build.search_marker"`
}

func (v *VerifyCmd) Run(g *Global, root *CLI) error {
	marker := v.Marker
	if marker == "" {
		if cfg, err := config.Load(root.Config); err == nil {
			marker = cfg.Build.SearchMarker
		} else {
			slog.Debug("No configuration for default marker", logfields.Path(root.Config), logfields.Error(err))
		}
	}

	res, err := site.Verify(v.Dir, marker)
	out := g.stdout()
	if res != nil {
		_, _ = fmt.Fprintf(out, "%s  %s\n", res.IndexDigest, site.IndexFile)
		_, _ = fmt.Fprintf(out, "%s  %s\n", res.FallbackDigest, site.FallbackFile)
	}
	if err != nil {
		return err
	}
	if marker != "" {
		_, _ = fmt.Fprintf(out, "marker %q present\n", marker)
	}
	_, _ = fmt.Fprintln(out, "ready to publish")
	return nil
}
