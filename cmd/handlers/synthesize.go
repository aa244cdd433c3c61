package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"signalbrief/internal/config"
	"signalbrief/internal/core"
	"signalbrief/internal/pipeline"
	"signalbrief/internal/render"
	"time"

	"github.com/spf13/cobra"
)

// NewSynthesizeCmd creates the synthesize command for a single run
func NewSynthesizeCmd() *cobra.Command {
	var (
		input       string
		orgID       string
		output      string
		markdownDir string
		noPersist   bool
	)

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Run one synthesis from a request file",
		Long: `Run the synthesis pipeline once for a JSON request of the form
{"organization_id", "organization_name", "events", "articles", "depth", "focus"}
and print the response payload.

Examples:
  # Print the response to stdout
  signalbrief synthesize --input request.json

  # Read from stdin, override the organization and skip persistence
  cat request.json | signalbrief synthesize --input - --org-id org-42 --no-persist

  # Also write a markdown brief to ./briefs
  signalbrief synthesize --input request.json --output out.json --markdown briefs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynthesize(cmd.Context(), input, orgID, output, markdownDir, noPersist)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "request JSON file, - for stdin (required)")
	cmd.Flags().StringVar(&orgID, "org-id", "", "override the request's organization_id")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the response JSON here instead of stdout")
	cmd.Flags().StringVar(&markdownDir, "markdown", "", "also write a markdown brief into this directory")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "do not persist the result")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runSynthesize(ctx context.Context, input, orgID, output, markdownDir string, noPersist bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()

	req, err := readRequest(input)
	if err != nil {
		return err
	}
	if orgID != "" {
		req.OrganizationID = orgID
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Synthesis.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Synthesis.RunTimeout)
		defer cancel()
	}

	resp, err := rt.pipeline.Run(ctx, req, pipeline.RunOptions{SkipPersist: noPersist})
	if err != nil {
		return err
	}

	if err := writeResponse(resp, output); err != nil {
		return err
	}

	if markdownDir != "" {
		req.Normalize()
		path, err := writeMarkdown(req, resp, markdownDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ Brief written to %s\n", path)
	}
	return nil
}

// readRequest decodes a synthesis request from a file or stdin
func readRequest(path string) (core.SynthesisRequest, error) {
	var req core.SynthesisRequest

	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("failed to open request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("failed to decode request %s: %w", path, err)
	}
	return req, nil
}

// writeResponse prints resp as indented JSON to path, or stdout when empty
func writeResponse(resp *core.SynthesisResponse, path string) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func writeMarkdown(req core.SynthesisRequest, resp *core.SynthesisResponse, dir string) (string, error) {
	at := resp.Metadata.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	cov := resp.DiscoveryAlignment
	content := render.MarkdownBrief(render.BriefData{
		OrganizationName: req.OrganizationName,
		GeneratedAt:      at,
		Result:           resp.Synthesis,
		Coverage:         &cov,
	})
	return render.WriteBriefToFile(content, dir, render.Filename(req.OrganizationID, at))
}
