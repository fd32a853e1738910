package subcmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"podsync/internal/action"
	"podsync/internal/engine"
	"podsync/internal/model"
)

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync all lists and log every change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			logChanges := func(kind engine.Kind) func(model.ItemsChanged) {
				log := logrus.WithField("kind", kind)
				return func(c model.ItemsChanged) {
					log.WithFields(logrus.Fields{"position": c.Position, "removed": c.Removed, "added": c.Added}).Info("items changed")
				}
			}
			a.Images.ItemsChanged.Connect(logChanges(engine.KindImage))
			a.Containers.ItemsChanged.Connect(logChanges(engine.KindContainer))
			a.Volumes.ItemsChanged.Connect(logChanges(engine.KindVolume))
			a.Networks.ItemsChanged.Connect(logChanges(engine.KindNetwork))
			if a.Pods != nil {
				a.Pods.ItemsChanged.Connect(logChanges(engine.KindPod))
			}
			a.Actions.CountsChanged.Connect(func(c action.Counts) {
				logrus.WithFields(logrus.Fields{
					"ongoing":   c.Ongoing,
					"finished":  c.Finished,
					"cancelled": c.Cancelled,
					"failed":    c.Failed,
				}).Info("actions changed")
			})

			ctx := cmd.Context()
			a.Start(ctx)
			logrus.Infof("watching %d images, %d containers, %d volumes, %d networks",
				a.Images.Len(), a.Containers.Len(), a.Volumes.Len(), a.Networks.Len())
			return a.Wait()
		},
	}
}
