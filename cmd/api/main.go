package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/scheduler"
	"backoffice/internal/service"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 15 * time.Second

// @title           Field Service Back Office API
// @version         1.0
// @description     Approvals, time clock and QuickBooks / Google Calendar sync for a field-service business.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cmd := &cli.Command{
		Name:   "api",
		Usage:  "field service back office API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server and the sync scheduler",
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "run one sync for a single user, or one full cycle",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Usage: "user id to sync; omit to run the cycle for every active integration",
					},
					&cli.StringFlag{
						Name:  "provider",
						Value: model.ProviderQuickBooks,
						Usage: "quickbooks, google_calendar, database_connections or all",
					},
				},
				Action: syncOnce,
			},
			{
				Name:  "create-user",
				Usage: "create a user, typically the first administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("ADMIN_PASSWORD")},
					&cli.StringFlag{Name: "role", Value: model.RoleAdmin},
				},
				Action: createUser,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.hub.Run(ctx)

	if a.cfg.Sync.AutoStart {
		if err := a.scheduler.Start(); err != nil {
			return err
		}
	}

	router, err := a.router()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	provider := cmd.String("provider")
	if cmd.String("user") == "" {
		return a.scheduler.RunSyncNow(ctx, provider)
	}

	userID, err := uuid.Parse(cmd.String("user"))
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}

	switch provider {
	case model.ProviderQuickBooks:
		result, err := a.accounting.FullSync(ctx, userID)
		if err != nil {
			return err
		}
		a.log.Info("QuickBooks sync completed",
			slog.Int("customers", result.Customers),
			slog.Int("items", result.Items),
			slog.Int("invoices", result.Invoices))
	case model.ProviderGoogleCalendar:
		shifts, err := a.calendar.SyncEmployeeSchedules(ctx, userID)
		if err != nil {
			return err
		}
		a.log.Info("Calendar sync completed", slog.Int("events", len(shifts)))
	case service.SyncDatabaseConnections, scheduler.ProviderAll:
		return fmt.Errorf("provider %q syncs every user; omit --user", provider)
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
	return nil
}

func createUser(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.CreateUser(ctx, service.CreateUserRequest{
		Username: cmd.String("username"),
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
		Role:     cmd.String("role"),
	})
	if err != nil {
		return err
	}
	a.log.Info("User created", slog.String("id", user.ID.String()), slog.String("role", user.Role))
	return nil
}
