package cli

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/statusstream/pkg/version"
	"github.com/spf13/cobra"
)

// VersionCmd prints build information.
func VersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				data, err := json.Marshal(version.Get())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(formatJSON(cmd.OutOrStdout(), data))
				return err
			}
			info := version.Get()
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"statusstream %s (%s, built %s, %s)\n",
				info.Version, info.Short(), info.BuildDate, info.GoVersion,
			)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}
