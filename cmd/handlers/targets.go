package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"signalbrief/internal/config"
	"signalbrief/internal/core"
	"signalbrief/internal/targets"
	"strings"

	"github.com/spf13/cobra"
)

// NewTargetsCmd creates the targets command for inspecting monitoring targets
func NewTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Inspect and edit an organization's monitoring targets",
		Long: `Show the target set the pipeline resolves for an organization (canonical
profile merged with legacy records), or replace the canonical profile.

Examples:
  signalbrief targets show --org-id org-42
  signalbrief targets set --org-id org-42 --competitors "Acme,Globex" --topics "grid storage"`,
	}

	cmd.AddCommand(newTargetsShowCmd())
	cmd.AddCommand(newTargetsSetCmd())

	return cmd
}

func newTargetsShowCmd() *cobra.Command {
	var (
		orgID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved target set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargetsShow(cmd.Context(), orgID, asJSON)
		},
	}
	cmd.Flags().StringVar(&orgID, "org-id", "", "organization ID (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	_ = cmd.MarkFlagRequired("org-id")

	return cmd
}

func newTargetsSetCmd() *cobra.Command {
	var (
		orgID        string
		competitors  []string
		stakeholders []string
		topics       []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the canonical profile targets (requires a database)",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := core.TargetSet{Competitors: competitors, Stakeholders: stakeholders, Topics: topics}
			return runTargetsSet(cmd.Context(), orgID, set)
		},
	}
	cmd.Flags().StringVar(&orgID, "org-id", "", "organization ID (required)")
	cmd.Flags().StringSliceVar(&competitors, "competitors", nil, "competitor names, comma separated")
	cmd.Flags().StringSliceVar(&stakeholders, "stakeholders", nil, "stakeholder names, comma separated")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "topic names, comma separated")
	_ = cmd.MarkFlagRequired("org-id")

	return cmd
}

func runTargetsShow(ctx context.Context, orgID string, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := newStores(ctx, config.Get())
	defer rt.Close()

	set := rt.loader.Load(ctx, orgID)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}

	fmt.Printf("Targets for %s (%d)\n", orgID, set.Total())
	for _, kind := range core.TargetKinds {
		names := set.ByKind(kind)
		if len(names) == 0 {
			fmt.Printf("  %-12s (none)\n", kind)
			continue
		}
		fmt.Printf("  %-12s %s\n", kind, strings.Join(names, ", "))
	}
	return nil
}

func runTargetsSet(ctx context.Context, orgID string, set core.TargetSet) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := newStores(ctx, config.Get())
	defer rt.Close()

	if rt.db == nil {
		return fmt.Errorf("a reachable database is required; set DATABASE_URL or database.url")
	}

	store := targets.NewPostgresProfileStore(rt.db.SQL())
	if err := store.SaveProfileTargets(ctx, orgID, set); err != nil {
		return err
	}

	fmt.Printf("✅ Saved %d targets for %s\n", set.Total(), orgID)
	return nil
}
