// Package httpd implements the httpd command: the administrative HTTP
// server, with the maintenance scheduler when enabled.
package httpd

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/linkscan/cmd/common"
	"github.com/jonesrussell/linkscan/internal/api"
	"github.com/jonesrussell/linkscan/internal/maintenance"
	"github.com/jonesrussell/linkscan/internal/queue"
	"github.com/jonesrussell/linkscan/internal/report"
)

const errorChannelBufferSize = 1

// Command returns the httpd command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Run the administrative HTTP server",
		Long: `Serves the scan management API. When scheduled maintenance is
enabled, also runs the automated scan and cleanup sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Start(cmd.Context())
		},
	}
}

// Start starts the HTTP server and runs until interrupted. It handles
// graceful shutdown on SIGINT or SIGTERM.
func Start(ctx context.Context) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	// Scans started through the API run asynchronously unless requested
	// otherwise, so the server always carries a producer.
	streams, err := queue.NewStreamsClient(queue.StreamsConfig{
		Addr:     deps.Config.Redis.Addr,
		Password: deps.Config.Redis.Password,
		DB:       deps.Config.Redis.DB,
		Prefix:   deps.Config.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer streams.Close()

	producer := queue.NewProducer(streams)

	engine, err := common.NewEngine(deps, producer)
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}
	defer engine.Close()

	router := api.SetupRouter(
		deps.Logger,
		api.NewScansHandler(engine.Service, engine.Links),
		api.NewPreferencesHandler(engine.Prefs),
		api.NewPagesHandler(engine.Registry),
		producer,
	)

	server := api.NewServer(api.ServerConfig{
		Addr:         deps.Config.Server.Address,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}, router, deps.Logger)

	scheduler := setupScheduler(deps, engine)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if scheduler != nil {
		if schedErr := scheduler.Start(runCtx); schedErr != nil {
			return fmt.Errorf("failed to start maintenance scheduler: %w", schedErr)
		}
		defer scheduler.Stop()
	}

	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case serveErr := <-errChan:
		return serveErr
	case <-runCtx.Done():
		deps.Logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), deps.Config.Server.ShutdownTimeout,
	)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// setupScheduler wires the maintenance sweep when enabled in config.
func setupScheduler(deps *common.CommandDeps, engine *common.Engine) *maintenance.Scheduler {
	if !deps.Config.Schedule.Enabled {
		return nil
	}

	var auth smtp.Auth
	if deps.Config.Mail.Username != "" {
		host, _, err := net.SplitHostPort(deps.Config.Mail.Addr)
		if err != nil {
			host = deps.Config.Mail.Addr
		}
		auth = smtp.PlainAuth("", deps.Config.Mail.Username, deps.Config.Mail.Password, host)
	}

	mailer := report.NewMailer(
		report.NewBuilder(engine.Scans, engine.Links),
		report.NewSMTPSender(deps.Config.Mail.Addr, auth),
		engine.Pages,
		deps.Logger,
	)

	var sites maintenance.SiteLister = engine.Pages
	if len(deps.Config.Schedule.SiteIDs) > 0 {
		sites = maintenance.StaticSites(deps.Config.Schedule.SiteIDs)
	}

	return maintenance.NewScheduler(
		sites,
		engine.Service,
		engine.Prefs,
		mailer,
		deps.Logger,
		deps.Config.Schedule.CronSpec,
	)
}
