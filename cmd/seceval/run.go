package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Mauttaram/SecurityEvaluator/internal/catalog"
	"github.com/Mauttaram/SecurityEvaluator/internal/config"
	"github.com/Mauttaram/SecurityEvaluator/internal/observability"
	"github.com/Mauttaram/SecurityEvaluator/internal/orchestrator"
	"github.com/Mauttaram/SecurityEvaluator/internal/worker"
	"github.com/Mauttaram/SecurityEvaluator/internal/worker/heuristic"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var (
	catalogPath    string
	outputJSON     bool
	tracingEnabled bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one evaluation with the built-in worker fleet",
	Long: `Run executes a full evaluation against the built-in simulated
subject using the heuristic worker fleet. The config file tunes budget,
phases, and consensus; --catalog swaps in a custom technique catalog.`,
	RunE: runEvaluation,
}

func init() {
	runCmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a technique catalog YAML (default: built-in catalog)")
	runCmd.Flags().BoolVar(&outputJSON, "json", false, "emit the full result as JSON")
	runCmd.Flags().BoolVar(&tracingEnabled, "tracing", false, "keep the process tracer provider instead of no-op")
}

func runEvaluation(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	handler := observability.NewHandler(cmd.ErrOrStderr(), cfg.Log.Format,
		observability.ParseLevel(cfg.Log.Level))
	logger := slog.New(handler)

	observability.InitTracing(tracingEnabled)

	var cat *catalog.Catalog
	if catalogPath != "" {
		cat, err = catalog.LoadFile(catalogPath)
	} else {
		cat, err = catalog.Load(defaultCatalogYAML)
	}
	if err != nil {
		return err
	}

	registry := worker.NewRegistry()
	for _, w := range heuristic.Fleet(nil) {
		if err := registry.Register(w); err != nil {
			return fmt.Errorf("failed to register worker %s: %w", w.Name(), err)
		}
	}

	o, err := orchestrator.New(cfg, cat, registry,
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(observability.Tracer("orchestrator")),
	)
	if err != nil {
		return err
	}

	result, err := o.Run(cmd.Context())
	if err != nil {
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printSummary(cmd, result)
	return nil
}

func printSummary(cmd *cobra.Command, result *orchestrator.EvaluationResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Evaluation %s\n", result.RunID)
	if result.Subject != "" {
		fmt.Fprintf(out, "  Subject:          %s\n", result.Subject)
	}
	fmt.Fprintf(out, "  Terminated:       %s after %d rounds (%.2fs)\n",
		result.TerminationReason, result.Rounds, result.Duration.Seconds())
	fmt.Fprintf(out, "  Budget:           %.2f / %.2f spent\n",
		result.Budget.Spent, result.Budget.Cap)
	fmt.Fprintf(out, "  Coverage:         %.1f%% of %d techniques\n",
		result.Coverage.Percentage, result.Coverage.TotalTechniques)

	fmt.Fprintln(out, "Attacker")
	fmt.Fprintf(out, "  Vulnerabilities:  %d (%.2f per spend unit)\n",
		result.Attacker.VulnerabilitiesFound, result.Attacker.CostEfficiency)
	fmt.Fprintf(out, "  Precision/Recall: %.2f / %.2f (F1 %.2f)\n",
		result.Attacker.Precision, result.Attacker.Recall, result.Attacker.F1)

	fmt.Fprintln(out, "Defender")
	fmt.Fprintf(out, "  Posture:          %.1f/100 (%s risk)\n",
		result.Defender.PostureScore, result.Defender.RiskTier)
	for severity, count := range result.Defender.VulnerabilitiesBySeverity {
		fmt.Fprintf(out, "  %-8s          %d\n", severity, count)
	}

	if len(result.Remediations) > 0 {
		fmt.Fprintln(out, "Remediations")
		for id, note := range result.Remediations {
			attackLabel := id.String()
			if len(attackLabel) > 8 {
				attackLabel = attackLabel[:8]
			}
			fmt.Fprintf(out, "  %s  %s\n", attackLabel, note)
		}
	}
}
