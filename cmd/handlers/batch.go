package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"signalbrief/internal/config"
	"signalbrief/internal/pipeline"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewBatchCmd creates the batch command for running many organizations
func NewBatchCmd() *cobra.Command {
	var (
		dir         string
		outDir      string
		concurrency int
		noPersist   bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run one synthesis per request file in a directory",
		Long: `Run the pipeline for every *.json request in a directory. Each file is an
independent run; runs execute concurrently up to --concurrency and one
failed organization does not stop the others.

Examples:
  signalbrief batch --dir requests/ --concurrency 4
  signalbrief batch --dir requests/ --out responses/ --no-persist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), dir, outDir, concurrency, noPersist)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of request JSON files (required)")
	cmd.Flags().StringVar(&outDir, "out", "responses", "directory for response JSON files")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum concurrent runs")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "do not persist results")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

// batchOutcome is one file's result
type batchOutcome struct {
	File       string
	Org        string
	Confidence string
	Err        error
}

func runBatch(ctx context.Context, dir, outDir string, concurrency int, noPersist bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()

	files, err := requestFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no request files found in %s", dir)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	outcomes := runRequests(ctx, rt.pipeline, files, outDir, concurrency, cfg.Synthesis, noPersist)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "❌ %s (%s): %v\n", o.File, o.Org, o.Err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✅ %s (%s): confidence %s\n", o.File, o.Org, o.Confidence)
	}

	rt.log.Info("Batch complete", "files", len(files), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(files))
	}
	return nil
}

// runRequests fans files out over an errgroup. Per-file failures are
// collected rather than cancelling the group.
func runRequests(ctx context.Context, synth *pipeline.Pipeline, files []string, outDir string, concurrency int, settings config.Synthesis, noPersist bool) []batchOutcome {
	if concurrency < 1 {
		concurrency = 1
	}

	// Each goroutine owns one slot
	outcomes := make([]batchOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, file := range files {
		g.Go(func() error {
			outcomes[i] = runOne(gctx, synth, file, outDir, settings, noPersist)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func runOne(ctx context.Context, synth *pipeline.Pipeline, file, outDir string, settings config.Synthesis, noPersist bool) batchOutcome {
	o := batchOutcome{File: filepath.Base(file)}

	req, err := readRequest(file)
	if err != nil {
		o.Err = err
		return o
	}
	o.Org = req.OrganizationID

	if settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.RunTimeout)
		defer cancel()
	}

	resp, err := synth.Run(ctx, req, pipeline.RunOptions{SkipPersist: noPersist})
	if err != nil {
		o.Err = err
		return o
	}
	o.Confidence = resp.Metadata.Confidence

	out := filepath.Join(outDir, strings.TrimSuffix(o.File, filepath.Ext(o.File))+".response.json")
	o.Err = writeResponse(resp, out)
	return o
}

// requestFiles lists *.json files in dir, sorted
func requestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read request directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
