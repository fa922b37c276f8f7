package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store/sqlstore"
)

// SchemaCmd manages store schemas
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Install or print a store schema",
	Long: `Install a class hierarchy into a store, or print the one it carries.

A schema file is TOML: a version, then [[class]] entries with name, parent,
abstract and [[class.attribute]] entries (name, type, multiple, defining,
allowed). Without --file the built-in pathway schema is used.

Examples:
  slice schema apply --dsn slice88.db
  slice schema apply --dsn postgres://slice@db/slice88 --file schema.toml
  slice schema show --dsn curated.db`,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install a schema and create its instance tables",
	RunE:  runSchemaApply,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the schema a store carries as TOML",
	RunE:  runSchemaShow,
}

var (
	schemaDSN    string
	schemaDriver string
	schemaFile   string
)

func init() {
	SchemaCmd.PersistentFlags().StringVar(&schemaDSN, "dsn", "", "Store DSN (default: the configured source for show, required for apply)")
	SchemaCmd.PersistentFlags().StringVar(&schemaDriver, "driver", "", "Driver: sqlite3 or pgx (default: guessed from the DSN)")
	schemaApplyCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "Schema definition file (default: built-in pathway schema)")

	SchemaCmd.AddCommand(schemaApplyCmd)
	SchemaCmd.AddCommand(schemaShowCmd)
}

// openDSN opens a store with an explicit driver or one guessed from the DSN.
func openDSN(dsn, driver string) (*db.DB, error) {
	dialect := db.DetectDialect(dsn)
	if driver != "" {
		dialect = db.DialectForDriver(driver)
	}
	return db.OpenDialect(dialect, dsn, logger.Logger)
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	if schemaDSN == "" {
		return errors.Configurationf("schema apply needs --dsn")
	}
	sch := schema.Default()
	if schemaFile != "" {
		loaded, err := schema.LoadFile(schemaFile)
		if err != nil {
			return errors.MarkConfiguration(err, "read schema file")
		}
		sch = loaded
	}

	database, err := openDSN(schemaDSN, schemaDriver)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migrate store")
	}
	if err := schema.Save(cmd.Context(), database, sch); err != nil {
		return errors.Wrap(err, "save schema")
	}
	if err := sqlstore.New(database, sch, logger.Logger, sqlstore.Options{}).EnsureTables(cmd.Context()); err != nil {
		return err
	}

	pterm.Success.Printf("Installed schema %s (%d classes)\n", sch.Version(), len(sch.Classes()))
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	dsn, driver := schemaDSN, schemaDriver
	if dsn == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dsn, driver = cfg.Source.DSN, cfg.Source.Driver
	}
	if dsn == "" {
		return errors.WithHint(errors.Configurationf("no store to read the schema from"),
			"pass --dsn or set source.dsn")
	}

	database, err := openDSN(dsn, driver)
	if err != nil {
		return err
	}
	defer database.Close()

	sch, err := schema.Load(cmd.Context(), database)
	if err != nil {
		return err
	}
	if err := schema.WriteTOML(os.Stdout, sch); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return nil
}
