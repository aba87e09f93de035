package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"salonbook/internal/catalog"
	"salonbook/internal/config"
	"salonbook/internal/export"
	"salonbook/internal/google"
	"salonbook/internal/models"
	"salonbook/internal/repository"
	"salonbook/internal/service"
	"salonbook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const commandTimeout = time.Minute

func newCheckConfigCmd(configPath *string) *cobra.Command {
	var probe bool

	c := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and optionally probe its backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config %s is valid\n", *configPath)
			fmt.Fprintf(out, "  ledger:  %s\n", e.cfg.Database.Driver)
			fmt.Fprintf(out, "  catalog: %s\n", e.cfg.Catalog.Source)
			fmt.Fprintf(out, "  scope:   %s\n", e.cfg.Booking.SlotScope)
			if !probe {
				return nil
			}

			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()
			return e.probe(ctx, out)
		},
	}
	c.Flags().BoolVar(&probe, "probe", false, "connect to redis, the ledger and the catalog source")
	return c
}

func (e *env) probe(ctx context.Context, out io.Writer) error {
	var failed []string
	report := func(name string, err error) {
		if err != nil {
			failed = append(failed, name)
			fmt.Fprintf(out, "  %-8s FAIL %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "  %-8s ok\n", name)
	}

	if e.cfg.Redis.Address != "" {
		client := repository.NewRedisClient(e.cfg.Redis)
		report("redis", repository.Ping(ctx, client))
		_ = repository.Close(client)
	}

	ledger, db, err := e.openLedger(ctx)
	if err == nil {
		_, err = ledger.QueryByDate(ctx, time.Now().Format(models.DateLayout))
		if db != nil {
			_ = db.Close()
		}
	}
	report("ledger", err)

	report("catalog", e.probeCatalog(ctx))

	if len(failed) > 0 {
		return fmt.Errorf("probe failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (e *env) probeCatalog(ctx context.Context) error {
	if e.cfg.Catalog.Source == config.CatalogSourceFile {
		_, err := catalog.LoadFile(e.cfg.Catalog.FilePath)
		return err
	}

	srv, err := google.NewSheetsAPI(ctx, e.cfg.Google)
	if err != nil {
		return err
	}
	source := google.NewSheetsCatalog(srv, e.cfg.Google.SpreadsheetID, e.cfg.Google.TechnicianSheet, e.cfg.Google.ServiceSheet)
	technicians, err := source.ListTechnicians(ctx)
	if err != nil {
		return err
	}
	services, err := source.ListServices(ctx)
	if err != nil {
		return err
	}
	return catalog.Validate(technicians, services)
}

func newSlotsCmd(configPath *string) *cobra.Command {
	var technician string

	c := &cobra.Command{
		Use:   "slots YYYY-MM-DD",
		Short: "List the booked times of a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			ledger, db, err := e.openLedger(ctx)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			bookings := service.NewBookingService(ledger, nil, nil, nil, models.SlotScope(e.cfg.Booking.SlotScope), 0, 0, e.logger)
			times, err := bookings.ListBookedSlots(ctx, args[0], technician)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(times) == 0 {
				fmt.Fprintf(out, "no bookings on %s\n", args[0])
				return nil
			}
			for _, t := range times {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}
	c.Flags().StringVarP(&technician, "technician", "t", "", "only slots held by this technician")
	return c
}

func newExportCmd(configPath *string) *cobra.Command {
	var from, to, dir string

	c := &cobra.Command{
		Use:   "export",
		Short: "Write bookings for a date range to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if to == "" {
				to = from
			}
			if dir == "" {
				dir = e.cfg.Exports.Path
			}

			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			ledger, db, err := e.openLedger(ctx)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			bookings := service.NewBookingService(ledger, nil, nil, nil, models.SlotScope(e.cfg.Booking.SlotScope), 0, 0, e.logger)
			records, err := bookings.ListBookings(ctx, from, to)
			if err != nil {
				return err
			}

			path, err := export.SaveBookings(dir, from, to, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d bookings written to %s\n", len(records), path)
			return nil
		},
	}
	c.Flags().StringVar(&from, "from", time.Now().Format(models.DateLayout), "first day, YYYY-MM-DD")
	c.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (defaults to --from)")
	c.Flags().StringVarP(&dir, "out", "o", "", "output directory (defaults to exports.path)")
	return c
}

func newResyncCmd(configPath *string) *cobra.Command {
	var from, to string
	var queue bool

	c := &cobra.Command{
		Use:   "resync",
		Short: "Rewrite the booking sheet from the ledger",
		Long: "Rewrites the booking sheet with the ledger rows for a date range. " +
			"The sheet ends up holding exactly that range. " +
			"With --queue the rewrite is handed to the running server's sheet worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Database.Driver == config.DriverSheets {
				return fmt.Errorf("the sheet is the ledger for database.driver=%s, nothing to resync", config.DriverSheets)
			}
			if to == "" {
				to = from
			}
			if from > to {
				return fmt.Errorf("--from %s is after --to %s", from, to)
			}

			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			ledger, db, err := e.openLedger(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if queue {
				client := e.redisClient()
				if client != nil {
					defer func() { _ = repository.Close(client) }()
				}
				w := worker.NewSheetsWorker(db, nil, ledger, client, worker.RetryPolicy{}, e.logger)
				if err := w.EnqueueReplace(ctx, from, to); err != nil {
					return err
				}
				fmt.Fprintf(out, "resync %s..%s queued\n", from, to)
				return nil
			}

			sheet, err := e.bookingSheet(ctx)
			if err != nil {
				return err
			}
			records, err := ledger.QueryRange(ctx, from, to)
			if err != nil {
				return err
			}
			if err := sheet.ReplaceBookings(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d bookings written to sheet %q\n", len(records), e.cfg.Google.BookingSheet)
			return nil
		},
	}
	c.Flags().StringVar(&from, "from", time.Now().Format(models.DateLayout), "first day, YYYY-MM-DD")
	c.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (defaults to --from)")
	c.Flags().BoolVar(&queue, "queue", false, "enqueue for the server's worker instead of writing directly")
	return c
}

func (e *env) redisClient() *redis.Client {
	if e.cfg.Redis.Address == "" {
		return nil
	}
	return repository.NewRedisClient(e.cfg.Redis)
}

func newSyncFailedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-failed",
		Short: "List sheet sync tasks that ran out of retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Database.Driver == config.DriverSheets {
				return fmt.Errorf("no sync queue for database.driver=%s", config.DriverSheets)
			}

			ctx, cancel := commandContext(cmd, commandTimeout)
			defer cancel()

			_, db, err := e.openLedger(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			tasks, err := db.GetFailedSyncTasks(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no failed sync tasks")
				return nil
			}
			for _, task := range tasks {
				lastErr := ""
				if task.LastError != nil {
					lastErr = *task.LastError
				}
				fmt.Fprintf(out, "%d\t%s\t%s\tretries=%d\t%s\n",
					task.ID, task.TaskType, task.BookingRef, task.RetryCount, lastErr)
			}
			return nil
		},
	}
}
