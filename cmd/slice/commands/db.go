package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/store/sqlstore"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage store bookkeeping tables",
	Long: `Manage the bookkeeping tables of a slice store: schema metadata, release
records and revision records.

Examples:
  slice db migrate --dsn slice88.db     # Apply pending bookkeeping migrations
  slice db releases                     # List releases committed to the target`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending bookkeeping migrations",
	RunE:  runDbMigrate,
}

var dbReleasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List releases recorded in a slice store",
	RunE:  runDbReleases,
}

var (
	dbDSN    string
	dbDriver string
)

func init() {
	DbCmd.PersistentFlags().StringVar(&dbDSN, "dsn", "", "Store DSN (default: the configured target)")
	DbCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "Driver: sqlite3 or pgx (default: guessed from the DSN)")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbReleasesCmd)
}

// openDbTarget opens the --dsn store, or the configured target.
func openDbTarget() (*db.DB, error) {
	dsn, driver := dbDSN, dbDriver
	if dsn == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dsn, driver = cfg.Target.DSN, cfg.Target.Driver
	}
	if dsn == "" {
		return nil, errors.WithHint(errors.Configurationf("no store given"), "pass --dsn or set target.dsn")
	}
	return openDSN(dsn, driver)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDbTarget()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return err
	}
	pterm.Success.Println("Bookkeeping tables are up to date")
	return nil
}

func runDbReleases(cmd *cobra.Command, args []string) error {
	database, err := openDbTarget()
	if err != nil {
		return err
	}
	defer database.Close()

	s, err := sqlstore.Open(cmd.Context(), database, logger.Logger, sqlstore.Options{})
	if err != nil {
		return err
	}
	releases, err := s.Releases(cmd.Context())
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		pterm.Info.Println("No releases recorded")
		return nil
	}
	for _, n := range releases {
		pterm.Printf("%d\n", n)
	}
	return nil
}
