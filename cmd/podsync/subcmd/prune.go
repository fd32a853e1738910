package subcmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"podsync/internal/action"
	"podsync/internal/app"
	"podsync/internal/engine"
)

func newPruneCommand(e *env) *cobra.Command {
	var opts engine.PruneOptions
	var until time.Duration
	cmd := &cobra.Command{
		Use:   "prune <container|image|pod|volume>",
		Short: "Remove unused entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			opts.Until = until

			var start func(a *app.App) *action.Action
			switch kind {
			case engine.KindImage:
				start = func(a *app.App) *action.Action { return a.Actions.PruneImages(opts) }
			case engine.KindContainer:
				start = func(a *app.App) *action.Action { return a.Actions.PruneContainers(opts) }
			case engine.KindPod:
				start = func(a *app.App) *action.Action { return a.Actions.PrunePods() }
			case engine.KindVolume:
				start = func(a *app.App) *action.Action { return a.Actions.PruneVolumes(opts) }
			default:
				return errors.Errorf("cannot prune %ss", kind)
			}

			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return start(a)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "images: also remove unused tagged images; volumes: also remove named volumes")
	cmd.Flags().DurationVar(&until, "until", 0, "only remove entities created before this duration ago")
	cmd.Flags().StringArrayVar(&opts.Labels, "label", nil, "only remove entities with this label (key=value)")
	return cmd
}
