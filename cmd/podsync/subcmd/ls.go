package subcmd

import (
	"context"
	"io"
	"strings"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"podsync/internal/app"
	"podsync/internal/engine"
)

func newLsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <container|image|pod|volume|network>",
		Short: "Refresh one list and print it as a table",
		Args:  cobra.ExactArgs(1),
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

			return listTable(cmd.Context(), a, kind, cmd.OutOrStdout())
		},
	}
}

// shortID 和 docker 一样只显示 12 位
func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func listTable(ctx context.Context, a *app.App, kind engine.Kind, out io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)

	switch kind {
	case engine.KindImage:
		if err := a.Images.Refresh(ctx); err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "TAGS", "SIZE", "CONTAINERS"})
		for _, img := range a.Images.Items() {
			tags := strings.Join(img.RepoTags(), ", ")
			if img.Dangling() {
				tags = "<none>"
			}
			t.AppendRow(table.Row{shortID(img.ID()), tags, units.HumanSize(float64(img.Size())), img.Containers()})
		}
		t.AppendFooter(table.Row{"", "TOTAL", units.HumanSize(float64(a.Images.TotalSize())), ""})

	case engine.KindContainer:
		if err := a.Containers.Refresh(ctx); err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "NAME", "IMAGE", "STATUS", "HEALTH"})
		for _, c := range a.Containers.Items() {
			t.AppendRow(table.Row{shortID(c.ID()), c.Name(), c.Data().ImageName, c.Status(), c.HealthStatus()})
		}

	case engine.KindPod:
		if a.Pods == nil {
			return errors.Wrap(engine.ErrNotSupported, "pods")
		}
		if err := a.Pods.Refresh(ctx); err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "NAME", "STATUS", "CONTAINERS"})
		for _, p := range a.Pods.Items() {
			t.AppendRow(table.Row{shortID(p.ID()), p.Name(), p.Status(), p.NumContainers()})
		}

	case engine.KindVolume:
		if err := a.Volumes.Refresh(ctx); err != nil {
			return err
		}
		t.AppendHeader(table.Row{"NAME", "DRIVER", "MOUNTPOINT"})
		for _, v := range a.Volumes.Items() {
			t.AppendRow(table.Row{v.Name(), v.Driver(), v.Mountpoint()})
		}

	case engine.KindNetwork:
		if err := a.Networks.Refresh(ctx); err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "NAME", "DRIVER", "INTERNAL"})
		for _, n := range a.Networks.Items() {
			t.AppendRow(table.Row{shortID(n.ID()), n.Name(), n.Driver(), n.Internal()})
		}
	}

	t.Render()
	return nil
}
