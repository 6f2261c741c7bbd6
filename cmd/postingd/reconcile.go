package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/TreasuryPostingEngine/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation scan and print the findings",
	Long: `reconcile compares every transfer request with its journal entry and
audit trail, prints what it finds and exits non-zero when anything needs
operator attention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		be, err := openBackend(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer be.close()

		r := reconcile.New(be.transfers, be.ledger, be.audit, reconcileConfig(), logger)
		report, err := r.CheckAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("scanned %d transfer request(s) at %s\n", report.Scanned, report.CheckedAt.Format("2006-01-02 15:04:05Z"))
		if len(report.Findings) == 0 {
			fmt.Println("consistent")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TRANSFER\tSTATUS\tKIND\tDETAIL")
		for _, f := range report.Findings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.TransferID, f.PostingStatus, f.Kind, f.Detail)
		}
		w.Flush()

		return fmt.Errorf("%d finding(s) require reconciliation", len(report.Findings))
	},
}
