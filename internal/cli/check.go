package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/formcheck"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <plugin> <action> <inputs.json>",
		Short: "Validate a job configuration against an action's input form",
		Long: "check reports the problems Galaxy would flag in a job configuration: missing " +
			"required values, out-of-range numbers, unknown options and failing validators. " +
			"It exits with status 1 when the configuration is invalid.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := a.registry.Action(args[0], args[1])
			if err != nil {
				return err
			}
			raw, err := readInputs(args[2])
			if err != nil {
				return err
			}

			res := formcheck.New(a.logger).Check(cases.Form(action.Signature), raw)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Valid {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}
