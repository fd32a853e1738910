package subcmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"podsync/internal/action"
	"podsync/internal/app"
	"podsync/internal/engine"
)

// withApp 启动 App 后执行动作命令，返回时停止同步
func withApp(cmd *cobra.Command, e *env, fn func(ctx context.Context, a *app.App) *action.Action) error {
	a, err := e.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.Start(ctx)

	return runAction(ctx, cmd.OutOrStdout(), fn(ctx, a))
}

func newPullCommand(e *env) *cobra.Command {
	var opts engine.PullOptions
	cmd := &cobra.Command{
		Use:   "pull <reference>",
		Short: "Pull an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Reference = args[0]
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.DownloadImage(opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "pull for a specific platform, e.g. linux/arm64")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

func newBuildCommand(e *env) *cobra.Command {
	var opts engine.BuildOptions
	var buildArgs []string
	cmd := &cobra.Command{
		Use:   "build <context-dir>",
		Short: "Build an image from a context directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ContextDir = args[0]
			opts.BuildArgs = parseBuildArgs(buildArgs)
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.BuildImage(opts)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&opts.Tags, "tag", "t", nil, "name and optionally a tag (name:tag)")
	cmd.Flags().StringVarP(&opts.Dockerfile, "file", "f", "", "Dockerfile relative to the context directory")
	cmd.Flags().StringArrayVar(&buildArgs, "build-arg", nil, "build-time variable (KEY=VALUE)")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "do not use cache when building")
	cmd.Flags().BoolVar(&opts.Pull, "pull", false, "always attempt to pull a newer base image")
	return cmd
}

// parseBuildArgs 只有 KEY 时值为 nil，由守护进程从环境中取值
func parseBuildArgs(args []string) map[string]*string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]*string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			out[k] = nil
			continue
		}
		out[k] = &v
	}
	return out
}

func newPushCommand(e *env) *cobra.Command {
	var opts engine.PushOptions
	cmd := &cobra.Command{
		Use:   "push <reference>",
		Short: "Push an image to its registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Reference = args[0]
			return withApp(cmd, e, func(ctx context.Context, a *app.App) *action.Action {
				return a.Actions.PushImage(opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.RegistryAuth, "auth", "", "base64 encoded registry auth")
	return cmd
}
