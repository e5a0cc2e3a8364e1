package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"payment-reconciliation-backend/internal/database"
	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/services/ingest"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := database.Migrate(e.db); err != nil {
			return err
		}
		e.log.Info("schema up to date")
		return nil
	},
}

var bankCode string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a bank statement and match its credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}
		rep, err := e.app().Imports.Import(cmd.Context(), ingest.Upload{
			FileName: filepath.Base(args[0]),
			BankCode: models.BankCode(strings.ToUpper(bankCode)),
			Data:     data,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var batchID string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Re-run matching over a batch's unmatched credits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(batchID)
		if err != nil {
			return errors.Wrap(err, "invalid --batch")
		}
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		sum, err := e.app().Imports.Rematch(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

var suggestLimit int

var suggestCmd = &cobra.Command{
	Use:   "suggest <transaction-id>",
	Short: "Print ranked invoice suggestions for a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid transaction id")
		}
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		sugg, err := e.app().Matcher.Suggestions(cmd.Context(), id, suggestLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sugg)
	},
}

func init() {
	importCmd.Flags().StringVar(&bankCode, "bank", string(models.BankGenericCSV), "statement format (GENERIC_CSV, INTESA_CSV, GENERIC_XLSX)")
	matchCmd.Flags().StringVar(&batchID, "batch", "", "import batch id")
	_ = matchCmd.MarkFlagRequired("batch")
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 0, "maximum suggestions (0 uses the configured default)")
}
