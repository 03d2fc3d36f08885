package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var errViolationsRemain = errors.New("column order violations remain")

type dbFlags struct {
	configPath string
	driver     string
	dsn        string
}

func newRootCmd() *cobra.Command {
	flags := &dbFlags{}

	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Operator tools for the task board database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "config file (default config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "database driver, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "database DSN, overrides the config file")

	rootCmd.AddCommand(migrateCmd(flags))
	rootCmd.AddCommand(auditCmd(flags))
	return rootCmd
}

func (f *dbFlags) open() (*gorm.DB, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	dbCfg := cfg.Database
	if f.driver != "" {
		dbCfg.Driver = f.driver
	}
	if f.dsn != "" {
		dbCfg.DSN = f.dsn
	}
	return models.Open(&dbCfg, gormlogger.Silent)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func migrateCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := models.SeedDefaults(db); err != nil {
				return fmt.Errorf("seed defaults: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func auditCmd(flags *dbFlags) *cobra.Command {
	var (
		repair    bool
		projectID string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check that every board column is numbered 0..n-1",
		Long: `Check that every (project, status) column holds the orders 0..n-1 exactly.

Broken columns are reported. With --repair they are renumbered by
(order, id) under the project lock. The command exits non-zero while
any violation remains.

Examples:
  boardctl audit
  boardctl audit --project 6f1c... --repair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer closeDB(db)

			report, err := services.NewOrderAuditor(db).Audit(cmd.Context(), projectID, repair)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
			printReport(cmd.OutOrStdout(), report)
			if report.Remaining() > 0 {
				return errViolationsRemain
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "renumber broken columns")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "audit a single project")
	return cmd
}

func printReport(w io.Writer, report *services.AuditReport) {
	for _, c := range report.Columns {
		state := "BROKEN"
		if c.Repaired {
			state = "REPAIRED"
		}
		fmt.Fprintf(w, "%-8s project=%s %s\n", state, c.ProjectID, c.Violation)
	}
	fmt.Fprintf(w, "checked %d projects, %d broken columns, %d rows renumbered\n",
		report.ProjectsChecked, len(report.Columns), report.Changes)
}
