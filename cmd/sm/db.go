package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Scanmark database",
		Long:  "Creates the database and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scanmark.yaml", "path to Scanmark config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adminDB, err := db.ConnectAdmin(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", cfg.DB.Host, cfg.DB.Port, err)
	}
	fmt.Fprintf(out, "Connected to %s:%d\n", cfg.DB.Host, cfg.DB.Port)

	if err := db.CreateDatabase(adminDB, cfg.DB.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.DB.Database)

	gormDB, err := db.Connect(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nScanmark database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Scanmark database",
		Long:  "Drops the Scanmark database, re-creates it and migrates all tables. All marking data is lost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scanmark.yaml", "path to Scanmark config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !skipConfirm && !confirmReset(cmd, cfg.DB.Database) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	adminDB, err := db.ConnectAdmin(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", cfg.DB.Host, cfg.DB.Port, err)
	}

	if err := db.DropDatabase(adminDB, cfg.DB.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped database %s\n", cfg.DB.Database)

	if err := db.CreateDatabase(adminDB, cfg.DB.Database); err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nScanmark database reset successfully.")
	return nil
}

func confirmReset(cmd *cobra.Command, dbName string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in database %q.\n", dbName)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
