package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/q2galaxy/internal/suite"
	"github.com/me/q2galaxy/pkg/model"
)

func newTemplateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write Galaxy tool suites",
	}

	templated := func(use, short string, nargs int, fn func(ctx context.Context, s *suite.Suite, args []string) ([]model.Status, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				out := args[len(args)-1]
				if err := outputDir(out); err != nil {
					return err
				}
				statuses, err := fn(cmd.Context(), suite.New(a.registry, a.logger), args)
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, st := range statuses {
					enc.Encode(st)
				}
				return err
			},
		}
	}

	cmd.AddCommand(
		templated("plugin <plugin> <output>", "Write the suite of one plugin", 2,
			func(ctx context.Context, s *suite.Suite, args []string) ([]model.Status, error) {
				p, err := a.registry.Plugin(args[0])
				if err != nil {
					return nil, err
				}
				return s.TemplatePlugin(ctx, p, args[1])
			}),
		templated("builtins <output>", "Write the import and export tools", 1,
			func(ctx context.Context, s *suite.Suite, args []string) ([]model.Status, error) {
				return s.TemplateBuiltins(ctx, args[0])
			}),
		templated("all <output>", "Write the suites of every plugin and the built-in tools", 1,
			func(ctx context.Context, s *suite.Suite, args []string) ([]model.Status, error) {
				return s.TemplateAll(ctx, args[0])
			}),
		templated("tests <output>", "Write the suite of the built-in test plugin", 1,
			func(ctx context.Context, s *suite.Suite, args []string) ([]model.Status, error) {
				return s.TemplateTests(ctx, args[0])
			}),
	)
	return cmd
}

// outputDir checks that dir is an existing directory.
func outputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory: %s is not a directory", dir)
	}
	return nil
}
