package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/q2galaxy/internal/driver"
)

func newRunCmd(a *app) *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "run <plugin> <action> <inputs.json>",
		Short: "Run a plugin action from a Galaxy job configuration",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInputs(args[2])
			if err != nil {
				return err
			}

			opts := []driver.Option{driver.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())}
			if workDir == "" {
				workDir = a.cfg.WorkDir
			}
			if workDir != "" {
				opts = append(opts, driver.WithWorkDir(workDir))
			}
			st, err := a.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
				opts = append(opts, driver.WithStore(st))
			}

			d := driver.New(a.registry, a.logger, opts...)
			if code := d.Run(cmd.Context(), args[0], args[1], raw); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory results are saved to (or Q2GALAXY_WORK_DIR)")
	return cmd
}

// readInputs decodes the job configuration file Galaxy writes for a tool.
func readInputs(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse inputs %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
