package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/q2galaxy/internal/builtins"
	"github.com/me/q2galaxy/internal/toolxml"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version <plugin>",
		Short: "Print the version of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			version := toolxml.BuiltinVersion(a.registry.Plugins())
			if id != builtins.PluginID {
				p, err := a.registry.Plugin(strings.ReplaceAll(id, "-", "_"))
				if err != nil {
					return err
				}
				version = p.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", id, version)
			return nil
		},
	}
}
