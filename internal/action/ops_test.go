package action

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsync/internal/engine"
	"podsync/internal/model"
)

func TestList_CounterUniqueness(t *testing.T) {
	l := NewList(Deps{})

	var got []uint32
	for _, num := range []uint32{5, 3, 5, 0, 9} {
		a := New(num, TypeUndefined, "test")
		l.Insert(a)
		got = append(got, a.Num())
	}

	assert.Equal(t, []uint32{5, 3, 6, 0, 9}, got)
	assert.Equal(t, uint32(10), l.Counter())

	seen := map[uint32]bool{}
	for _, a := range l.Items() {
		assert.False(t, seen[a.Num()], "duplicate num %d", a.Num())
		seen[a.Num()] = true
		assert.Less(t, a.Num(), l.Counter())
	}
}

func TestList_CleanUpReverseOrder(t *testing.T) {
	l := NewList(Deps{})
	var actions []*Action
	for i := 0; i < 5; i++ {
		a := l.create(TypeUndefined, "test")
		actions = append(actions, a)
	}
	actions[0].finish()
	actions[2].fail(errors.New("boom"))
	actions[4].Cancel()

	var positions []int
	l.ItemsChanged.Connect(func(c model.ItemsChanged) {
		assert.Equal(t, 1, c.Removed)
		positions = append(positions, c.Position)
	})

	assert.Equal(t, 3, l.CleanUp())
	assert.Equal(t, []int{4, 2, 0}, positions)
	require.Equal(t, 2, l.Len())

	for _, a := range l.Items() {
		assert.Equal(t, StateOngoing, a.State())
	}
	assert.Equal(t, Counts{Ongoing: 2}, l.Counts())
}

func TestList_CountsChanged(t *testing.T) {
	l := NewList(Deps{})
	var last Counts
	l.CountsChanged.Connect(func(c Counts) { last = c })

	a := l.create(TypeUndefined, "one")
	assert.Equal(t, Counts{Ongoing: 1}, last)

	a.fail(errors.New("boom"))
	assert.Equal(t, Counts{Failed: 1}, last)
	assert.Equal(t, 1, l.Failed())

	require.True(t, l.Remove(a.Num()))
	assert.Equal(t, Counts{}, last)
	assert.False(t, l.Remove(a.Num()))
}

func TestList_Subscribe(t *testing.T) {
	l := NewList(Deps{})
	ch := l.Subscribe()

	a := l.create(TypeVolume, "create")
	a.finish()

	ev := <-ch
	assert.Equal(t, StateOngoing, ev.State)
	ev = <-ch
	assert.Equal(t, StateFinished, ev.State)
	assert.Equal(t, a.Num(), ev.Num)

	l.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestDownloadImage_ArtifactAfterRefresh(t *testing.T) {
	f := newFixture()
	f.rt.images.pull = scriptedPull(
		engine.PullReport{Stream: "Pulling fs layer\n"},
		engine.PullReport{Stream: "Download complete\n"},
		engine.PullReport{ID: "sha256:abc"},
	)

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "alpine:3.20"})
	waitDone(t, a)

	assert.Equal(t, StateFinished, a.State())
	assert.Equal(t, "Download complete\nPulling fs layer\n", a.Output())
	assert.True(t, a.Artifact().IsZero())

	var notified int
	a.ArtifactChanged.Connect(func(Artifact) { notified++ })
	require.Eventually(t, func() bool { return f.images.Added.Len() == 1 }, time.Second, 5*time.Millisecond)

	f.rt.images.add(engine.ImageData{ID: "sha256:abc", RepoTags: []string{"alpine:3.20"}})
	require.NoError(t, f.images.Refresh(context.Background()))
	require.NoError(t, f.images.Refresh(context.Background()))

	assert.Equal(t, Artifact{Kind: engine.KindImage, ID: "sha256:abc"}, a.Artifact())
	assert.Equal(t, 1, notified)
	assert.Equal(t, 0, f.images.Added.Len())
}

func TestDownloadImage_ImageAlreadyListed(t *testing.T) {
	f := newFixture()
	f.rt.images.add(engine.ImageData{ID: "sha256:abc"})
	require.NoError(t, f.images.Refresh(context.Background()))
	f.rt.images.pull = scriptedPull(engine.PullReport{ID: "sha256:abc"})

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "alpine"})
	waitDone(t, a)

	require.Eventually(t, func() bool { return !a.Artifact().IsZero() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "sha256:abc", a.Artifact().ID)
	assert.Equal(t, 0, f.images.Added.Len())
}

func TestDownloadImage_Cancel(t *testing.T) {
	f := newFixture()
	started := make(chan struct{})
	f.rt.images.pull = func(ctx context.Context, opts engine.PullOptions) (<-chan engine.PullReport, error) {
		ch := make(chan engine.PullReport)
		go func() {
			defer close(ch)
			select {
			case ch <- engine.PullReport{Stream: "Pulling fs layer\n"}:
			case <-ctx.Done():
				return
			}
			close(started)
			<-ctx.Done()
		}()
		return ch, nil
	}

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "alpine"})
	<-started
	require.True(t, a.Cancel())
	waitDone(t, a)

	assert.Equal(t, StateCancelled, a.State())
	assert.NotZero(t, a.EndTimestamp())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateCancelled, a.State())
	assert.True(t, a.Artifact().IsZero())
	assert.Equal(t, 0, f.images.Added.Len())
}

func TestDownloadImage_PullError(t *testing.T) {
	f := newFixture()
	f.rt.images.pull = scriptedPull(
		engine.PullReport{Stream: "Pulling\n"},
		engine.PullReport{Err: errors.New("manifest unknown")},
	)

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "nope"})
	waitDone(t, a)

	assert.Equal(t, StateFailed, a.State())
	assert.Contains(t, a.Output(), "manifest unknown")
	assert.True(t, a.Artifact().IsZero())
}

func TestDownloadImage_IncompleteStream(t *testing.T) {
	f := newFixture()
	f.rt.images.pull = scriptedPull(engine.PullReport{Stream: "Pulling\n"})

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "alpine"})
	waitDone(t, a)

	assert.Equal(t, StateFailed, a.State())
	assert.Contains(t, a.Output(), ErrIncompleteStream.Error())
}

func TestCreateContainer_PullsMissingImage(t *testing.T) {
	f := newFixture()
	f.rt.images.pull = scriptedPull(
		engine.PullReport{Stream: "Pulling\n"},
		engine.PullReport{ID: "sha256:pulled"},
	)
	f.rt.containers.create = func(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
		return "c0ffee", nil
	}

	a := f.actions.CreateContainer(engine.ContainerCreateOptions{Name: "web", Image: "nginx"}, true)
	waitDone(t, a)

	require.Equal(t, StateFinished, a.State(), a.Output())
	assert.Equal(t, "Start new container web", a.Name())
	assert.Equal(t, 1, f.rt.images.numPulls())
	require.Len(t, f.rt.containers.created, 1)
	assert.Equal(t, "sha256:pulled", f.rt.containers.created[0].Image)
	assert.Equal(t, []string{"c0ffee"}, f.rt.containers.started)

	require.NoError(t, f.containers.Refresh(context.Background()))
	require.Eventually(t, func() bool { return a.Artifact().ID == "c0ffee" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.KindContainer, a.Artifact().Kind)
}

func TestCreateContainer_LocalImageSkipsPull(t *testing.T) {
	f := newFixture()
	f.rt.images.add(engine.ImageData{ID: "sha256:0123456789abcdef", RepoTags: []string{"nginx:latest"}})
	require.NoError(t, f.images.Refresh(context.Background()))
	f.rt.containers.create = func(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
		return "c0ffee", nil
	}

	a := f.actions.CreateContainer(engine.ContainerCreateOptions{Image: "docker.io/library/nginx"}, false)
	waitDone(t, a)

	require.Equal(t, StateFinished, a.State(), a.Output())
	assert.Equal(t, 0, f.rt.images.numPulls())
	assert.Equal(t, "sha256:0123456789abcdef", f.rt.containers.created[0].Image)
	assert.Empty(t, f.rt.containers.started)
}

func TestCreateContainer_CancelDuringCreate(t *testing.T) {
	f := newFixture()
	f.rt.images.add(engine.ImageData{ID: "sha256:0123456789abcdef", RepoTags: []string{"nginx:latest"}})
	require.NoError(t, f.images.Refresh(context.Background()))

	entered := make(chan struct{})
	f.rt.containers.create = func(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}

	a := f.actions.CreateContainer(engine.ContainerCreateOptions{Image: "nginx"}, true)
	<-entered
	a.Cancel()
	waitDone(t, a)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateCancelled, a.State())
	assert.Empty(t, f.rt.containers.started)
	assert.NotContains(t, a.Output(), "context canceled")
}

func TestCreateContainer_StartError(t *testing.T) {
	f := newFixture()
	f.rt.images.add(engine.ImageData{ID: "sha256:0123456789abcdef", RepoTags: []string{"nginx:latest"}})
	require.NoError(t, f.images.Refresh(context.Background()))
	f.rt.containers.create = func(ctx context.Context, opts engine.ContainerCreateOptions) (string, error) {
		return "c0ffee", nil
	}
	f.rt.containers.start = func(ctx context.Context, id string) error {
		return errors.New("port is already allocated")
	}

	a := f.actions.CreateContainer(engine.ContainerCreateOptions{Image: "nginx"}, true)
	waitDone(t, a)

	assert.Equal(t, StateFailed, a.State())
	assert.Contains(t, a.Output(), "error on starting container: port is already allocated")
}

func TestBuildImage_ReportsID(t *testing.T) {
	f := newFixture()
	f.rt.images.build = func(ctx context.Context, opts engine.BuildOptions) (<-chan engine.BuildChunk, error) {
		ch := make(chan engine.BuildChunk, 3)
		ch <- engine.BuildChunk{Stream: "Step 1/2 : FROM alpine\n"}
		ch <- engine.BuildChunk{Stream: "Successfully built\n"}
		ch <- engine.BuildChunk{Stream: "sha256:built\n"}
		close(ch)
		return ch, nil
	}

	a := f.actions.BuildImage(engine.BuildOptions{ContextDir: ".", Tags: []string{"app:dev"}})
	waitDone(t, a)

	require.Equal(t, StateFinished, a.State(), a.Output())
	assert.Equal(t, "Build image app:dev", a.Name())
	assert.True(t, strings.HasSuffix(a.Output(), "Generating tarball of context directory...\n"))

	f.rt.images.add(engine.ImageData{ID: "sha256:built"})
	require.Eventually(t, func() bool {
		_ = f.images.Refresh(context.Background())
		return a.Artifact().ID == "sha256:built"
	}, time.Second, 10*time.Millisecond)
}

func TestBuildImage_Error(t *testing.T) {
	f := newFixture()
	f.rt.images.build = func(ctx context.Context, opts engine.BuildOptions) (<-chan engine.BuildChunk, error) {
		return nil, errors.New("cannot read Dockerfile")
	}

	a := f.actions.BuildImage(engine.BuildOptions{ContextDir: "."})
	waitDone(t, a)

	assert.Equal(t, StateFailed, a.State())
	assert.Equal(t, "Build image <none>", a.Name())
	assert.Contains(t, a.Output(), "cannot read Dockerfile")
}

func TestPushImage(t *testing.T) {
	f := newFixture()
	f.rt.images.push = func(ctx context.Context, opts engine.PushOptions) (<-chan engine.PushReport, error) {
		ch := make(chan engine.PushReport, 2)
		ch <- engine.PushReport{Stream: "Pushing\n"}
		ch <- engine.PushReport{Stream: "Pushed\n"}
		close(ch)
		return ch, nil
	}

	a := f.actions.PushImage(engine.PushOptions{Reference: "registry.local/app:1"})
	waitDone(t, a)

	assert.Equal(t, StateFinished, a.State())
	assert.Equal(t, "Pushed\nPushing\n", a.Output())
}

func TestPrune(t *testing.T) {
	f := newFixture()

	a := f.actions.PruneContainers(engine.PruneOptions{})
	waitDone(t, a)

	assert.Equal(t, StateFinished, a.State())
	assert.Contains(t, a.Output(), `"space_reclaimed": 2048`)
	assert.Contains(t, a.Output(), `"c1"`)
}

func TestPrune_Error(t *testing.T) {
	f := newFixture()
	f.rt.images.prune = func(ctx context.Context, opts engine.PruneOptions) (engine.PruneReport, error) {
		return engine.PruneReport{}, errors.New("a prune operation is already running")
	}

	a := f.actions.PruneImages(engine.PruneOptions{All: true})
	waitDone(t, a)

	assert.Equal(t, StateFailed, a.State())
	assert.Contains(t, a.Output(), "already running")
}

func TestPods_NotSupported(t *testing.T) {
	f := newFixture()

	create := f.actions.CreatePod(engine.PodCreateOptions{Name: "p"})
	prune := f.actions.PrunePods()
	waitDone(t, create)
	waitDone(t, prune)

	assert.Equal(t, StateFailed, create.State())
	assert.Equal(t, StateFailed, prune.State())
	assert.Contains(t, create.Output(), engine.ErrNotSupported.Error())
}

func TestCreateVolume(t *testing.T) {
	f := newFixture()

	a := f.actions.CreateVolume(engine.VolumeCreateOptions{Name: "data"})
	waitDone(t, a)
	require.Equal(t, StateFinished, a.State())

	require.NoError(t, f.volumes.Refresh(context.Background()))
	require.Eventually(t, func() bool { return a.Artifact().ID == "data" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.KindVolume, a.Artifact().Kind)
}

func TestRemove_DetachesArtifactHandler(t *testing.T) {
	f := newFixture()
	f.rt.images.pull = scriptedPull(engine.PullReport{ID: "sha256:later"})

	a := f.actions.DownloadImage(engine.PullOptions{Reference: "alpine"})
	waitDone(t, a)
	require.Eventually(t, func() bool { return f.images.Added.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, f.actions.Remove(a.Num()))
	assert.Equal(t, 0, f.images.Added.Len())

	f.rt.images.add(engine.ImageData{ID: "sha256:later"})
	require.NoError(t, f.images.Refresh(context.Background()))
	assert.True(t, a.Artifact().IsZero())
}
