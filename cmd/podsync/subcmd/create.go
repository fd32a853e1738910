package subcmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"podsync/internal/action"
	"podsync/internal/app"
	"podsync/internal/engine"
)

func newCreateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a container, pod or volume",
	}
	cmd.AddCommand(newCreateContainerCommand(e), newCreatePodCommand(e), newCreateVolumeCommand(e))
	return cmd
}

func newCreateContainerCommand(e *env) *cobra.Command {
	var opts engine.ContainerCreateOptions
	var labels []string
	var noStart bool
	cmd := &cobra.Command{
		Use:   "container <image> [command...]",
		Short: "Create and start a container, pulling the image if needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Image = args[0]
			opts.Cmd = args[1:]
			opts.Labels = parseLabels(labels)
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.CreateContainer(opts, !noStart)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "container name")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "environment variable (KEY=VALUE)")
	cmd.Flags().StringArrayVarP(&opts.Ports, "publish", "p", nil, "publish a port (8080:80/tcp)")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label (key=value)")
	cmd.Flags().StringVar(&opts.PodID, "pod", "", "create the container inside this pod")
	cmd.Flags().BoolVar(&opts.AutoRemove, "rm", false, "remove the container when it exits")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "create without starting")
	return cmd
}

func newCreatePodCommand(e *env) *cobra.Command {
	var opts engine.PodCreateOptions
	var labels []string
	cmd := &cobra.Command{
		Use:   "pod <name>",
		Short: "Create a pod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			opts.Labels = parseLabels(labels)
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.CreatePod(opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Hostname, "hostname", "", "pod hostname")
	cmd.Flags().StringVar(&opts.InfraImage, "infra-image", "", "image for the infra container")
	cmd.Flags().BoolVar(&opts.NoInfra, "no-infra", false, "create the pod without an infra container")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label (key=value)")
	return cmd
}

func newCreateVolumeCommand(e *env) *cobra.Command {
	var opts engine.VolumeCreateOptions
	var labels, driverOpts []string
	cmd := &cobra.Command{
		Use:   "volume [name]",
		Short: "Create a volume",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Name = args[0]
			}
			opts.Labels = parseLabels(labels)
			opts.DriverOpts = parseLabels(driverOpts)
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.CreateVolume(opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Driver, "driver", "d", "local", "volume driver")
	cmd.Flags().StringArrayVarP(&driverOpts, "opt", "o", nil, "driver option (key=value)")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label (key=value)")
	return cmd
}

// parseLabels 解析 key=value 列表，没有值时为空字符串
func parseLabels(items []string) map[string]string {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, _ := strings.Cut(item, "=")
		out[k] = v
	}
	return out
}
