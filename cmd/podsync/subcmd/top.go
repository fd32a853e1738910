package subcmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"podsync/internal/engine"
	"podsync/internal/model"
)

func newTopCommand(e *env) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "top <container|pod> <id>",
		Short: "Show the processes of a container or pod, refreshed every tick",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			if kind != engine.KindContainer && kind != engine.KindPod {
				return errors.Errorf("top is not available for %ss", kind)
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			pl, err := a.Top(ctx, kind, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			updated := make(chan struct{}, 1)
			notify := func(struct{}) {
				select {
				case updated <- struct{}{}:
				default:
				}
			}
			pl.Updated.Connect(notify)
			// 第一次快照可能在订阅之前就已应用
			if pl.Len() > 0 {
				notify(struct{}{})
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-updated:
					printProcesses(out, pl)
					if once {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print the first snapshot and exit")
	return cmd
}

func printProcesses(out io.Writer, pl *model.ProcessList) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"USER", "PID", "PPID", "%CPU", "ELAPSED", "TTY", "TIME", "COMMAND"})
	for _, p := range pl.Items() {
		info := p.Info()
		t.AppendRow(table.Row{info.User, info.PID, info.PPID, fmt.Sprintf("%.1f", info.CPU), info.Elapsed, info.TTY, info.Time, info.Command})
	}
	t.Render()
}
