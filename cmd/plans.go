package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingcore/pkg/config"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
	"github.com/dmitrymomot/billingcore/svc/billing"
)

func newPlansCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Validate and list the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg billing.Config
			if err := config.Load(&cfg); err != nil {
				return fmt.Errorf("billing config: %w", err)
			}
			catalog, err := cfg.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writePlansJSON(cmd, catalog.Plans())
			}
			return writePlansTable(cmd, catalog.Plans())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

type planRow struct {
	ID       subscription.PlanID                   `json:"id"`
	Name     string                                `json:"name"`
	Limit    int64                                 `json:"resource_limit"`
	Fee      string                                `json:"fee_percent"`
	PriceIDs map[subscription.BillingCycle]string `json:"price_ids,omitempty"`
	Free     bool                                  `json:"free"`
}

func writePlansJSON(cmd *cobra.Command, plans []subscription.Plan) error {
	rows := make([]planRow, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, planRow{
			ID:       p.ID,
			Name:     p.Name,
			Limit:    p.ResourceLimit,
			Fee:      p.FeePercent.String(),
			PriceIDs: p.PriceIDs,
			Free:     p.Free,
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writePlansTable(cmd *cobra.Command, plans []subscription.Plan) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLIMIT\tFEE %\tMONTHLY\tYEARLY")
	for _, p := range plans {
		limit := "unlimited"
		if !p.IsUnlimited() {
			limit = strconv.FormatInt(p.ResourceLimit, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, limit, p.FeePercent.String(),
			orDash(p.PriceIDs[subscription.CycleMonthly]),
			orDash(p.PriceIDs[subscription.CycleYearly]),
		)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
