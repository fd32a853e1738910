package subcmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRmCommand(e *env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm <kind> <id>...",
		Short: "Remove one or more entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.Refresh(ctx); err != nil {
				return err
			}
			for _, id := range args[1:] {
				if err := a.Delete(ctx, kind, id, force); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "force removal of running entities")
	return cmd
}
