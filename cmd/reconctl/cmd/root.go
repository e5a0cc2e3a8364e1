package cmd

import (
	"encoding/json"
	"io"

	"payment-reconciliation-backend/internal/app"
	"payment-reconciliation-backend/internal/config"
	"payment-reconciliation-backend/internal/database"
	"payment-reconciliation-backend/internal/logging"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "reconctl",
	Short: "Bank statement reconciliation tool",
	Long: `reconctl imports bank statements, matches payments against open
invoices and inspects suggestions from the command line.

Examples:
  reconctl migrate
  reconctl import statement.csv --bank GENERIC_CSV
  reconctl match --batch 6f1c...
  reconctl suggest 0b9e...`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(migrateCmd, importCmd, matchCmd, suggestCmd)
}

type env struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB
}

func (e *env) app() *app.App {
	return app.New(e.db, e.cfg, e.log)
}

// setup loads configuration, builds the logger and opens the database.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.NewWithOutput(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
