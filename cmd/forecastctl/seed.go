package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/cashflow/internal/infrastructure/persistence"
	"github.com/erp/cashflow/internal/infrastructure/seed"
)

var seedCfg = seed.DefaultConfig()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a synthetic receivables ledger",
	Long:  "Generates customers, invoices and payments with gofakeit and writes them to the database. Reusing --seed reproduces the same ledger.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		gen, err := seed.NewGenerator(seedCfg)
		if err != nil {
			return err
		}
		ledger, err := gen.Generate(time.Now())
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		w := seed.NewWriter(
			persistence.NewGormCustomerRepository(db.DB),
			persistence.NewGormInvoiceRepository(db.DB),
			persistence.NewGormPaymentRepository(db.DB),
			log,
		)
		return w.Write(cmd.Context(), ledger)
	},
}

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedCfg.Customers, "customers", seedCfg.Customers, "number of customers")
	f.IntVar(&seedCfg.Invoices, "invoices", seedCfg.Invoices, "number of invoices")
	f.IntVar(&seedCfg.HistoryDays, "history-days", seedCfg.HistoryDays, "how far back invoices are issued")
	f.Uint64Var(&seedCfg.Seed, "seed", seedCfg.Seed, "random seed; 0 is random")
	rootCmd.AddCommand(seedCmd)
}
