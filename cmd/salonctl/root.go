package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/google"
	"salonbook/internal/logging"
	"salonbook/internal/models"
	"salonbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// env carries what every subcommand needs after config is loaded.
type env struct {
	cfg    *config.Config
	logger *zerolog.Logger
	close  func()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "salonctl",
		Short:         "Operator tool for the salon booking server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config.yaml")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newCheckConfigCmd(&configPath))
	root.AddCommand(newSlotsCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newResyncCmd(&configPath))
	root.AddCommand(newSyncFailedCmd(&configPath))

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "salonctl %s (commit=%s)\n", Version, CommitSHA)
		},
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func loadEnv(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// operator output goes to stdout, logs stay on stderr
	cfg.Logging.Output = "stderr"
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &env{
		cfg:    cfg,
		logger: logging.Component(baseLogger, "salonctl"),
		close: func() {
			if closer != nil {
				_ = closer.Close()
			}
		},
	}, nil
}

// openLedger opens the configured booking ledger. db is nil for the sheets driver.
func (e *env) openLedger(ctx context.Context) (domain.Ledger, *database.DB, error) {
	switch e.cfg.Database.Driver {
	case config.DriverSheets:
		sheet, err := e.bookingSheet(ctx)
		if err != nil {
			return nil, nil, err
		}
		return google.NewSheetsLedger(sheet, repository.NewMemorySlotLocker(), models.SlotScope(e.cfg.Booking.SlotScope)), nil, nil
	default:
		db, err := database.NewDB(e.cfg.Database.Path, e.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return database.NewLedger(db), db, nil
	}
}

func (e *env) bookingSheet(ctx context.Context) (*google.SheetsService, error) {
	if !e.cfg.Google.Configured() {
		return nil, fmt.Errorf("google sheets is not configured")
	}
	srv, err := google.NewSheetsAPI(ctx, e.cfg.Google)
	if err != nil {
		return nil, fmt.Errorf("init google sheets: %w", err)
	}
	return google.NewSheetsService(srv, e.cfg.Google.SpreadsheetID, e.cfg.Google.BookingSheet), nil
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
