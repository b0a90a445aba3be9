package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/client"
	"github.com/octapulse-dev/octapulse-core/internal/config"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
	"github.com/octapulse-dev/octapulse-core/internal/manifest"
	"github.com/octapulse-dev/octapulse-core/tui"
)

var (
	analyzeGrid float64
	analyzeWait bool
	resultsJSON bool
)

func init() {
	// analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze IMAGE...",
		Short: "Analyze images against a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().Float64Var(&analyzeGrid, "grid-size", 0, "calibration grid square size in inches")
	analyzeCmd.Flags().BoolVar(&analyzeWait, "wait", false, "poll a multi-image batch until it finishes")
	rootCmd.AddCommand(analyzeCmd)

	// batch command
	batchCmd := &cobra.Command{
		Use:   "batch MANIFEST",
		Short: "Submit a batch from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	rootCmd.AddCommand(batchCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status BATCH",
		Short: "Show batch progress",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// results command
	resultsCmd := &cobra.Command{
		Use:   "results BATCH",
		Short: "Fetch results of a finished batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runResults,
	}
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "print raw JSON")
	rootCmd.AddCommand(resultsCmd)

	// cancel command
	cancelCmd := &cobra.Command{
		Use:   "cancel BATCH",
		Short: "Cancel a running batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	}
	rootCmd.AddCommand(cancelCmd)

	// stats command
	statsCmd := &cobra.Command{
		Use:   "stats BATCH",
		Short: "Show population statistics for a completed batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch [BATCH]",
		Short: "Launch the TUI monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	// version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("octapulse %s (api %s, model %s)\n",
				version, domain.APIVersion, domain.DefaultModelVersion)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func apiClient() (*client.Client, error) {
	if serverURL != "" {
		return client.New(serverURL), nil
	}
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	return client.New("http://" + cfg.Server.Addr()), nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	cfg := domain.DefaultBatchConfig()
	if analyzeGrid > 0 {
		cfg.GridSizeInches = analyzeGrid
	}

	if len(args) == 1 {
		res, err := analyzeOne(ctx, c, args[0], cfg)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}

	refs := make([]string, 0, len(args))
	for _, arg := range args {
		refs = append(refs, absoluteRef(arg))
	}

	receipt, err := c.CreateBatch(ctx, refs, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Batch %s submitted (%d images", receipt.BatchID, receipt.TotalImages)
	if len(receipt.InvalidImages) > 0 {
		fmt.Printf(", %d unreadable", len(receipt.InvalidImages))
	}
	fmt.Println(")")

	if analyzeWait {
		return waitForBatch(ctx, c, receipt.BatchID)
	}
	fmt.Printf("Track it with: octapulse status %s\n", receipt.BatchID)
	return nil
}

// analyzeOne uploads a local file, but passes store references and
// server-side paths through untouched.
func analyzeOne(ctx context.Context, c *client.Client, ref string, cfg domain.BatchConfig) (*domain.AnalysisResult, error) {
	if !blobstore.IsStoreRef(ref) {
		if _, err := os.Stat(ref); err == nil {
			return c.UploadAndAnalyze(ctx, ref, cfg)
		}
	}
	return c.AnalyzeImage(ctx, ref, cfg)
}

// absoluteRef makes local paths absolute so the server can resolve
// them regardless of its working directory.
func absoluteRef(ref string) string {
	if blobstore.IsStoreRef(ref) {
		return ref
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return ref
	}
	return abs
}

func waitForBatch(ctx context.Context, c *client.Client, batchID string) error {
	for {
		progress, err := c.Status(ctx, batchID)
		if err != nil {
			return err
		}

		fmt.Printf("\r%-10s %5.1f%% (%d done, %d failed of %d)   ",
			progress.Status, progress.ProgressPercent,
			progress.CompletedImages, progress.FailedImages, progress.TotalImages)

		if progress.Status.IsTerminal() {
			fmt.Println()
			if progress.Message != "" {
				fmt.Println(progress.Message)
			}
			return nil
		}
		time.Sleep(time.Second)
	}
}

func printResult(res *domain.AnalysisResult) {
	fmt.Printf("Analysis %s: %s\n", res.AnalysisID, res.Status)
	if res.Status == domain.AnalysisFailed {
		fmt.Printf("  error: %s\n", res.ErrorMessage)
		return
	}

	fmt.Printf("  image: %s\n", res.ImagePath)
	if n := res.DetectionCounts["fish"]; n > 0 {
		fmt.Printf("  fish detected: %d\n", n)
	}
	if res.Calibration != nil {
		fmt.Printf("  calibration: %.1f px/in (%s)\n",
			res.Calibration.PixelsPerInch, res.Calibration.CalibrationQuality)
	}
	for _, m := range res.Measurements {
		fmt.Printf("  %-24s %6.2f in\n", m.Name, m.DistanceInches)
	}
	for kind := range res.Visualizations {
		fmt.Printf("  artifact: %s\n", kind)
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	baseDir, err := filepath.Abs(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	images, err := m.ExpandImages(baseDir)
	if err != nil {
		return err
	}

	c, err := apiClient()
	if err != nil {
		return err
	}

	receipt, err := c.CreateBatch(context.Background(), images, m.Config())
	if err != nil {
		return err
	}

	name := m.Name
	if name == "" {
		name = filepath.Base(args[0])
	}
	fmt.Printf("Batch %s submitted from %s (%d images)\n", receipt.BatchID, name, receipt.TotalImages)
	if len(receipt.InvalidImages) > 0 {
		fmt.Println("Unreadable images:")
		for _, ref := range receipt.InvalidImages {
			fmt.Printf("  - %s\n", ref)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	progress, err := c.Status(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Batch:    %s\n", progress.BatchID)
	fmt.Printf("Status:   %s\n", progress.Status)
	fmt.Printf("Progress: %.1f%% (%d done, %d failed of %d)\n",
		progress.ProgressPercent, progress.CompletedImages,
		progress.FailedImages, progress.TotalImages)

	if progress.CurrentImage != "" {
		fmt.Printf("Analyzing: %s\n", progress.CurrentImage)
	}
	if progress.ProcessingRate != nil {
		fmt.Printf("Rate:     %.1f images/min\n", *progress.ProcessingRate)
	}
	if progress.EstimatedCompletionTime != nil {
		fmt.Printf("ETA:      %s\n", humanize.Time(*progress.EstimatedCompletionTime))
	}
	if progress.Message != "" {
		fmt.Printf("Message:  %s\n", progress.Message)
	}

	fmt.Printf("Started:  %s\n", humanize.Time(progress.StartedAt))
	if progress.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", humanize.Time(*progress.CompletedAt))
	}
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	result, err := c.Results(context.Background(), args[0])
	if err != nil {
		return err
	}

	if resultsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Batch %s: %s (%d analyzed, %d failed of %d)\n",
		result.BatchID, result.Status,
		result.CompletedImages, result.FailedImages, result.TotalImages)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tSTATUS\tFISH\tLENGTH(in)\tTIME(s)")
	for _, res := range result.Results {
		length := "-"
		for _, m := range res.Measurements {
			if m.Name == "total_length" {
				length = fmt.Sprintf("%.2f", m.DistanceInches)
				break
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\n",
			filepath.Base(res.ImagePath), res.Status,
			res.DetectionCounts["fish"], length,
			res.Metadata.ProcessingTimeSeconds)
	}
	w.Flush()

	if len(result.InvalidImages) > 0 {
		fmt.Println("\nUnreadable images:")
		for _, ref := range result.InvalidImages {
			fmt.Printf("  - %s\n", ref)
		}
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}
	if err := c.Cancel(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Cancelled batch %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	stats, err := c.PopulationStats(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Population: %d fish across %d analyses (%d failed)\n",
		stats.TotalFish, stats.SuccessfulAnalyses, stats.FailedAnalyses)
	fmt.Printf("Processing: %.1fs total, %.2fs per image\n",
		stats.ProcessingTimeTotal, stats.ProcessingTimeAverage)

	if len(stats.Distributions) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MEASUREMENT\tMEAN\tMEDIAN\tSTDDEV\tMIN\tMAX\tN")
		for _, d := range stats.Distributions {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
				d.MeasurementName, d.Mean, d.Median, d.StdDev,
				d.MinValue, d.MaxValue, d.SampleSize)
		}
		w.Flush()
	}

	if len(stats.SizeClassification) > 0 {
		fmt.Println("\nSize classes:")
		for _, name := range []string{"small", "medium", "large"} {
			b, ok := stats.SizeClassification[name]
			if !ok {
				continue
			}
			fmt.Printf("  %-7s %3d (%.1f%%)  %.2f-%.2f in\n",
				name, b.Count, b.Percentage, b.Range[0], b.Range[1])
		}
	}

	if len(stats.Correlations) > 0 {
		fmt.Println("\nCorrelations:")
		for _, corr := range stats.Correlations {
			fmt.Printf("  %s ~ %s: r=%.2f (%s)\n",
				corr.Measurement1, corr.Measurement2, corr.Coefficient, corr.Strength)
		}
	}

	for _, ins := range stats.Insights {
		fmt.Printf("\n[%s] %s\n  %s\n", ins.Category, ins.Title, ins.Insight)
	}

	q := stats.QualityMetrics
	fmt.Printf("\nDetection quality: %d high / %d medium / %d low (avg %.2f)\n",
		q.HighConfidence, q.MediumConfidence, q.LowConfidence, q.AverageConfidence)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	batches, err := c.List(context.Background())
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDONE\tFAILED\tTOTAL\tSTARTED")
	for _, sum := range batches {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			sum.BatchID, sum.Status, sum.CompletedImages,
			sum.FailedImages, sum.TotalImages, humanize.Time(sum.StartedAt))
	}
	w.Flush()
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	batchID := ""
	if len(args) > 0 {
		batchID = args[0]
	}

	model := tui.NewModel(tui.ModelConfig{Client: c, BatchID: batchID})
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, err = p.Run()
	return err
}
