package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/webui"
)

var (
	serveAddr  string
	withViewer bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live view of the plan in the browser",
	Long: `Starts a local web server showing the plan. The page updates whenever the
plan file changes, including changes made by other xmlagent processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		addr := a.cfg.WebUI.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := a.startViewer(ctx, addr)
		if err != nil {
			return err
		}
		defer shutdown()
		a.console.Info("Press Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from webui.addr)")
	rootCmd.PersistentFlags().BoolVar(&withViewer, "viewer", false, "Also serve the plan viewer while the command runs")
	rootCmd.AddCommand(serveCmd)
}

// startViewer serves the plan viewer until the returned function is called
// or ctx ends. Task progress of this process is pushed to the browser as
// well as file changes.
func (a *app) startViewer(ctx context.Context, addr string) (func(), error) {
	bus := events.NewEventBus()
	watcher, err := webui.NewWatcher(bus, a.session.Plans, a.session.Memory.Path())
	if err != nil {
		return nil, err
	}
	server := webui.NewPlanServer(a.session.Plans, a.session.Memory.Path(), bus, addr)
	if err := server.Start(ctx); err != nil {
		watcher.Stop()
		return nil, err
	}
	watcher.Start()
	a.session.Orchestrator.Events = bus
	a.console.Success("Plan viewer at http://" + server.Addr())

	return func() {
		a.session.Orchestrator.Events = nil
		watcher.Stop()
		if err := server.Shutdown(); err != nil {
			a.logger.LogError(err)
		}
	}, nil
}

// maybeStartViewer honours --viewer for long-running commands.
func (a *app) maybeStartViewer(ctx context.Context) func() {
	if !withViewer {
		return func() {}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := a.startViewer(ctx, a.cfg.WebUI.Addr)
	if err != nil {
		a.console.Warn("Plan viewer not started: " + err.Error())
		return func() {}
	}
	return shutdown
}
