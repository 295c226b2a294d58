package processor

import (
	"context"
	"fmt"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

func newJobFixture(t *testing.T, input entity.EncodedImage) (database.ImageRepository, storage.ObjectStorage, entity.OptimizationTask) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewFileStorage(t.TempDir(), "http://localhost:8080")
	repo := database.NewImageRepository(store)

	key, err := repo.SaveImage(ctx, database.PrefixOptimizeInput, input, time.Hour)
	require.NoError(t, err)

	job := &entity.OptimizationJob{ID: "job-1", Status: entity.JobProcessing, TargetUsage: entity.UsageI2I, InputKey: key}
	require.NoError(t, repo.SaveJob(ctx, job))

	return repo, store, entity.OptimizationTask{JobID: job.ID, InputKey: key, TargetUsage: entity.UsageI2I}
}

func TestImageProcessorCompletesJob(t *testing.T) {
	ctx := context.Background()
	input := encodeJPEG(t, noiseImage(1600, 1200, 7), 95)
	repo, store, task := newJobFixture(t, input)

	p := NewImageProcessor(repo, NewProgressiveOptimizer(testLogger()), time.Hour, testLogger())
	require.NoError(t, p.Process(ctx, task))

	job, err := repo.FindJob(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobCompleted, job.Status)
	assert.NotEmpty(t, job.OutputKey)
	assert.Contains(t, job.OutputURL, "/objects/optimized/")
	assert.Greater(t, job.Stages, 0)

	out, err := repo.LoadImage(ctx, job.OutputKey)
	require.NoError(t, err)
	assert.Less(t, out.Size(), input.Size())

	assert.False(t, store.Exists(ctx, task.InputKey))
}

func TestImageProcessorRecordsFailure(t *testing.T) {
	ctx := context.Background()
	garbage := entity.EncodedImage{MIMEType: entity.MIMEPNG, Data: []byte("not an image at all")}
	repo, store, task := newJobFixture(t, garbage)

	p := NewImageProcessor(repo, NewProgressiveOptimizer(testLogger()), time.Hour, testLogger())
	assert.Error(t, p.Process(ctx, task))

	job, err := repo.FindJob(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
	assert.False(t, store.Exists(ctx, task.InputKey))
}

func TestImageProcessorUnknownJob(t *testing.T) {
	ctx := context.Background()
	repo, _, task := newJobFixture(t, encodePNG(t, solidImage(8, 8, color.RGBA{R: 255, A: 255})))
	task.JobID = "missing"

	p := NewImageProcessor(repo, NewProgressiveOptimizer(testLogger()), time.Hour, testLogger())
	assert.ErrorIs(t, p.Process(ctx, task), entity.ErrJobNotFound)
}

type gatedProcessor struct {
	release   chan struct{}
	active    int32
	maxActive int32
	done      int32
	canceled  int32
}

func (g *gatedProcessor) Process(ctx context.Context, task entity.OptimizationTask) error {
	n := atomic.AddInt32(&g.active, 1)
	for {
		peak := atomic.LoadInt32(&g.maxActive)
		if n <= peak || atomic.CompareAndSwapInt32(&g.maxActive, peak, n) {
			break
		}
	}

	<-g.release
	if ctx.Err() != nil {
		atomic.AddInt32(&g.canceled, 1)
	}
	atomic.AddInt32(&g.active, -1)
	atomic.AddInt32(&g.done, 1)
	return nil
}

func TestJobPoolBoundsConcurrencyAndDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gate := &gatedProcessor{release: make(chan struct{})}
	pool := newJobPool(gate, 2, testLogger())

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 5; i++ {
			pool.Submit(ctx, entity.OptimizationTask{JobID: fmt.Sprintf("job-%d", i)})
		}
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&gate.active) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	close(gate.release)

	<-submitted
	pool.Wait()

	assert.EqualValues(t, 5, atomic.LoadInt32(&gate.done))
	assert.EqualValues(t, 2, atomic.LoadInt32(&gate.maxActive))
	assert.Zero(t, atomic.LoadInt32(&gate.canceled))
}
