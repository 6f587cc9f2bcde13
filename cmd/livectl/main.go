// Command livectl is the operator CLI: admin settings, user groups and the expiry sweep.
package main

import (
	"fmt"
	"os"

	"fanlive/internal/config"
	"fanlive/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env loads configuration and opens the database on first use.
type env struct {
	load func() (*config.Config, error)
	open func(cfg *config.Config) (*gorm.DB, error)

	cfg *config.Config
	db  *gorm.DB
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "livectl [command] [flags]",
		Short: "livectl manages admin settings, groups and live housekeeping",
		Long: `livectl is the operator command line for the live session backend.

Examples:
  # Print the current admin settings
  livectl settings show

  # Allow five reschedules per live
  livectl settings set --max-reschedules 5

  # Exempt user 42 from the reschedule limit
  livectl groups add reschedule_exempt 42

  # Expire lives whose window has passed
  livectl lives expire`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newSettingsCmd(e))
	root.AddCommand(newGroupsCmd(e))
	root.AddCommand(newLivesCmd(e))
	return root
}

func (e *env) connect() error {
	if e.db != nil {
		return nil
	}
	cfg, err := e.load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := e.open(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	e.cfg, e.db = cfg, db
	return nil
}

func (e *env) close() {
	if e.db == nil {
		return
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func main() {
	e := &env{load: config.LoadConfig, open: database.Connect}
	err := newRootCmd(e).Execute()
	e.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
