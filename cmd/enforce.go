package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errEnforceTarget = errors.New("exactly one of --tenant or --all is required")

func newEnforceCmd() *cobra.Command {
	var (
		tenant string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Archive resources above the plan limit",
		Long:  "enforce brings one tenant, or every tenant with a billing profile, within its current plan's resource limit. The newest active resources are archived first. No payment provider credentials are needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (tenant == "") == !all {
				return errEnforceTarget
			}
			return runEnforce(cmd, tenant, all)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID to enforce")
	cmd.Flags().BoolVar(&all, "all", false, "Enforce every tenant with a billing profile")

	return cmd
}

func runEnforce(cmd *cobra.Command, tenant string, all bool) error {
	ctx := cmd.Context()

	var tenantID uuid.UUID
	if !all {
		var err error
		if tenantID, err = uuid.Parse(tenant); err != nil {
			return fmt.Errorf("invalid tenant id %q: %w", tenant, err)
		}
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	quota, err := rt.quota(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if all {
		report, err := quota.EnforceAll(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(report)
	}

	planID, archived, err := quota.EnforceTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return enc.Encode(map[string]any{
		"tenant_id": tenantID,
		"plan_id":   planID,
		"archived":  archived,
	})
}
