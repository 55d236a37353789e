package commands

import (
	"fmt"

	"github.com/leapstack-labs/daxport/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation HTTP API",
		Long: `Start an HTTP server exposing translation and model conversion.

Endpoints:
  GET  /healthz            Liveness check
  GET  /api/v1/rules       Translation rules in use
  POST /api/v1/translate   {"expression": "..."} to SQL
  POST /api/v1/convert     Model document (JSON or YAML) to view scripts

The server stops gracefully on Ctrl+C.`,
		Example: `  # Listen on the default address
  daxport serve

  # Listen on all interfaces
  daxport serve --addr 0.0.0.0:8480`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	// Read back through the config layer as server.addr.
	cmd.Flags().String("addr", "", "Listen address (default "+server.DefaultAddr+")")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)

	tr, err := cmdCtx.Translator()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:       cmdCtx.Cfg.Server.Addr,
		Translator: tr,
		Artifacts:  cmdCtx.Cfg.ArtifactConfig(),
		Logger:     cmdCtx.Logger,
	})

	r := cmdCtx.Renderer
	_, _ = fmt.Fprintln(r.ErrWriter(), r.Styles().Info.Render("listening on http://"+srv.Addr()))
	return srv.Serve(cmd.Context())
}
