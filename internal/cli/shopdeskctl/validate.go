package shopdeskctl

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopdesk/shopdesk/internal/safety"
)

type verdictOutput struct {
	Safe       bool               `json:"safe"`
	SQL        string             `json:"sql"`
	Violations []safety.Violation `json:"violations"`
}

func validateCommand() *cobra.Command {
	var policyPath string
	var params []string
	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a statement against the safety policy without a gateway",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := safety.LoadPolicy(policyPath)
			if err != nil {
				return err
			}
			bound := make([]any, 0, len(params))
			for _, param := range params {
				bound = append(bound, param)
			}

			verdict := safety.NewValidator(policy).Validate(args[0], bound)
			out := verdictOutput{Safe: verdict.Safe(), SQL: verdict.SQL(), Violations: verdict.Violations()}
			if out.Violations == nil {
				out.Violations = []safety.Violation{}
			}
			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("encode verdict: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			if !verdict.Safe() {
				return errUnsafe
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "safety policy YAML (defaults to the built-in policy)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "bound parameter value, repeatable in $1..$n order")
	return cmd
}
