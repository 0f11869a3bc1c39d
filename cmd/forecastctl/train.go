package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/cache"
	"github.com/erp/cashflow/internal/infrastructure/persistence"
	"github.com/erp/cashflow/internal/infrastructure/storage"
)

var (
	trainPurpose string
	trainJSON    bool

	forecastDays        int
	forecastGranularity string
)

// services is the application layer opened against the configured database
type services struct {
	db          *persistence.Database
	cache       *cache.Factory
	predictions *forecastapp.PredictionService
	models      *forecastapp.ModelService
}

func (s *services) Close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	_ = s.db.Close()
}

func openServices(cmd *cobra.Command) (*services, error) {
	db, err := openDatabase()
	if err != nil {
		return nil, err
	}
	artifacts, err := storage.NewArtifactStore(&cfg.Storage, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	invoices := persistence.NewGormInvoiceRepository(db.DB)
	payments := persistence.NewGormPaymentRepository(db.DB)
	modelRepo := persistence.NewGormModelRepository(db.DB)
	registry := forecastapp.NewRegistry(modelRepo, artifacts, log)
	if err := registry.ReloadAll(cmd.Context()); err != nil {
		log.Debug("Active models not loaded", zap.Error(err))
	}

	// Activations are announced so running servers pick the new model up
	factory := cache.NewFactory(cfg.Redis, cache.WithLogger(log), cache.WithInMemoryFallback(true))
	if err := factory.Connect(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts := []forecastapp.Option{forecastapp.WithBatchConcurrency(cfg.Forecast.BatchConcurrency)}
	predictions := forecastapp.NewPredictionService(
		invoices,
		persistence.NewGormCustomerRepository(db.DB),
		payments,
		persistence.NewGormPredictionRepository(db.DB),
		registry, log, opts...,
	)
	models := forecastapp.NewModelService(
		invoices, payments, modelRepo, artifacts, registry, factory.ActivationBus(),
		cfg.Forecast.TrainingOptions(), cfg.Forecast.TrendOptions(), log, opts...,
	)
	return &services{
		db:          db,
		cache:       factory,
		predictions: predictions,
		models:      models,
	}, nil
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and activate a model",
	Long:  "Trains a model for the given purpose in the foreground, stores its artifact and makes it the active model.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		purpose, err := forecast.ParsePurpose(trainPurpose)
		if err != nil {
			return err
		}
		svc, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.models.CheckTrainable(cmd.Context(), purpose); err != nil {
			return err
		}
		result, err := svc.models.Train(cmd.Context(), purpose)
		if err != nil {
			return err
		}
		return printTraining(cmd, result)
	},
}

func printTraining(cmd *cobra.Command, result *forecastapp.TrainingResult) error {
	out := cmd.OutOrStdout()
	if trainJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	m := result.Model
	fmt.Fprintf(out, "model    %s\nversion  %s\ntype     %s\nsamples  %d\ntook     %.2fs\n",
		m.ID, m.Version, m.ModelType, m.TrainingSamples, m.TrainingSeconds)
	if result.PredictorKind != "" {
		fmt.Fprintf(out, "kind     %s\n", result.PredictorKind)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nMETRIC\tVALUE")
	for _, name := range slices.Sorted(maps.Keys(m.Metrics)) {
		fmt.Fprintf(tw, "%s\t%.4f\n", name, m.Metrics[name])
	}
	return tw.Flush()
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print the trend forecast of daily receipts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		resp, err := svc.predictions.ForecastTrend(cmd.Context(), forecastapp.TrendForecastQuery{
			DaysAhead:   forecastDays,
			Granularity: forecastGranularity,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		a := resp.TrendAnalysis
		fmt.Fprintf(out, "model %s, trend %s (%s, %+.1f%%), avg daily %.2f\n\n",
			resp.ModelVersion, a.Direction, a.Strength, a.ChangePct, a.AvgDailyCashflow)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "PERIOD\tDAYS\tEXPECTED\tLOWER\tUPPER\t")
		for _, p := range resp.Forecast {
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t\n", p.Period, p.Days, p.Yhat, p.Lower, p.Upper)
		}
		return tw.Flush()
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainPurpose, "purpose", string(forecast.PurposePaymentPredictor), "payment_predictor or cashflow_forecaster")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "print the result as JSON")

	forecastCmd.Flags().IntVar(&forecastDays, "days", 90, "days ahead, 7 to 365")
	forecastCmd.Flags().StringVar(&forecastGranularity, "granularity", "day", "day, week or month")

	rootCmd.AddCommand(trainCmd, forecastCmd)
}
