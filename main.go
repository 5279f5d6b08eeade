package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"listing-classifier/config"
	"listing-classifier/services"
	"listing-classifier/storage"
	"listing-classifier/utils"
)

const defaultRetryDelay = 2 * time.Second

var (
	rootDir  string
	progress bool

	logger = utils.NewLogger()

	rootCmd = &cobra.Command{
		Use:   "listing-classifier",
		Short: "Categorise rental listings from their titles and structured attributes",
		Long: `listing-classifier trains a logistic-regression baseline and four random
forest configurations on labelled rental listings, reports their test and
out-of-bag accuracy, and can label new listings with the best forest.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root holding results/ and Categorization ML Data/ (overrides ROOT_DIR)")
	rootCmd.PersistentFlags().BoolVar(&progress, "progress", false, "show a progress bar while forests train")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(importanceCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(showCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Received interrupt signal, stopping after the current tree...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg := config.Load()
	if rootDir != "" {
		cfg.RootDir = rootDir
	}
	return cfg
}

func pipelineOptions(cfg *config.Config) services.Options {
	opts := services.OptionsFromConfig(cfg)
	opts.Progress = progress
	logger.Info("Config: trees %d | workers %d | seed %d | split seed %d | max_df %.2f | test size %.2f | folds %d",
		opts.Trees, opts.Workers, opts.Seed, opts.SplitSeed, opts.MaxDF, opts.TestSize, opts.CVFolds)
	return opts
}

// openStore connects to PostgreSQL when enabled. A failed connection is
// logged and the run continues without persistence.
func openStore(ctx context.Context, cfg *config.Config) *storage.ResultStore {
	if !cfg.PostgresEnabled {
		return nil
	}
	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: defaultRetryDelay, Logger: logger}
	store, err := storage.OpenResultStore(ctx, cfg.DSN(), retry)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Results will only be printed. Make sure Docker is running: docker compose up -d")
		return nil
	}
	return store
}

func runCmd() *cobra.Command {
	var proba bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train and evaluate every model configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := loadConfig()
			opts := pipelineOptions(cfg)
			if cmd.Flags().Changed("proba") {
				opts.WriteProba = proba
			}

			logger.Info("=== Listing classification starting ===")
			var p *services.Pipeline
			if store := openStore(ctx, cfg); store != nil {
				defer store.Close()
				p = services.NewPipeline(opts, logger, os.Stdout, store)
			} else {
				p = services.NewPipeline(opts, logger, os.Stdout, nil)
			}

			if _, err := p.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if opts.WriteProba {
				fmt.Printf("  Done. Class probabilities → %s\n\n", opts.OutputDir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&proba, "proba", false, "write per-model class probabilities for the test partition")
	return cmd
}

func sweepCmd() *cobra.Command {
	var maxTrees, step int
	var maxDF bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Record out-of-bag error against forest size or title max_df",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := services.NewPipeline(pipelineOptions(loadConfig()), logger, os.Stdout, nil)
			if maxDF {
				points, path, err := p.SweepMaxDF(cmd.Context(), services.DefaultMaxDFGrid())
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				fmt.Printf("  Done. %d max_df values → %s\n\n", len(points), path)
				return nil
			}
			points, path, err := p.Sweep(cmd.Context(), maxTrees, step)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Printf("  Done. %d forest sizes → %s\n\n", len(points), path)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTrees, "max-trees", 500, "largest forest to fit")
	cmd.Flags().IntVar(&step, "step", 50, "increment in trees between fits")
	cmd.Flags().BoolVar(&maxDF, "max-df", false, "vary the title max_df from 0.05 to 0.95 instead of the forest size")
	return cmd
}

func importanceCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Rank features of the titles+structured 3-category forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := services.NewPipeline(pipelineOptions(loadConfig()), logger, os.Stdout, nil)
			if _, err := p.Importance(cmd.Context(), top); err != nil {
				return fmt.Errorf("importance: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 25, "number of features to show (0 for all)")
	return cmd
}

func predictCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Label unlabelled listings with the titles+structured 3-category forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := services.NewPipeline(pipelineOptions(loadConfig()), logger, os.Stdout, nil)
			path, err := p.PredictUnlabeled(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}
			fmt.Printf("  Done. Predictions → %s\n\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "unlabelled listings CSV (default: the imputed aggregated dataset under --root)")
	return cmd
}

func showCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the model results of a stored run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if !cfg.PostgresEnabled {
				return errors.New("show: POSTGRES_ENABLED is false")
			}
			store := openStore(cmd.Context(), cfg)
			if store == nil {
				return errors.New("show: no result store")
			}
			defer store.Close()

			results, err := store.FetchRun(runID)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			services.NewReportService(logger, os.Stdout).PrintRun(runID, results)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id printed by a previous run")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
