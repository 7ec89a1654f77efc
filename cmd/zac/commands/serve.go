package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/web"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API",
		Long: `Serve the case handling API, the request log and the notification
callback. The schemas of the configured services are loaded and checked at
startup. The config file is watched and clients are rebuilt when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, v, err := createApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			err = application.Preload(ctx)
			if err != nil {
				application.Logger.Warn("Schemas not preloaded; retrying on first use", map[string]interface{}{
					"error": err.Error(),
				})
			}

			if v.ConfigFileUsed() != "" {
				config.Watch(v, func(settings *config.Settings, err error) {
					if err != nil {
						application.Logger.Warn("Ignoring invalid configuration", map[string]interface{}{
							"file":  v.ConfigFileUsed(),
							"error": err.Error(),
						})

						return
					}

					application.Reload(settings)
				})
			}

			if addr == "" {
				addr = application.Settings().Server.Addr
			}

			return web.NewServer(application).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")

	return cmd
}
