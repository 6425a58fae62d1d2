package indexer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
)

func okJob(pages int) Job {
	return func(ctx context.Context) (*models.IngestResult, error) {
		return &models.IngestResult{Pages: pages, Documents: 1}, nil
	}
}

func gatedJob(gate <-chan struct{}) Job {
	return func(ctx context.Context) (*models.IngestResult, error) {
		<-gate
		return &models.IngestResult{Pages: 1}, nil
	}
}

func TestQueue_submitAndWait(t *testing.T) {
	q := NewQueue(2, 4)
	t.Cleanup(func() { _ = q.Close() })

	task, err := q.Submit(okJob(3))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)

	got, ok := q.Get(task.ID)
	require.True(t, ok)
	status := got.Status()
	assert.Equal(t, TaskSucceeded, status.State)
	assert.NotNil(t, status.FinishedAt)
	assert.Empty(t, status.Error)
}

func TestQueue_failureRecordedOnTask(t *testing.T) {
	q := NewQueue(1, 1)
	t.Cleanup(func() { _ = q.Close() })

	task, err := q.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		return nil, models.ErrEmbeddingUnavailable
	})
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	require.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	assert.Equal(t, TaskFailed, task.Status().State)
	assert.Equal(t, models.ErrEmbeddingUnavailable.Error(), task.Status().Error)
}

func TestQueue_panicBecomesFailure(t *testing.T) {
	q := NewQueue(1, 1)
	t.Cleanup(func() { _ = q.Close() })

	task, err := q.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = task.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestQueue_full(t *testing.T) {
	gate := make(chan struct{})
	q := NewQueue(1, 1)
	t.Cleanup(func() { _ = q.Close() })
	t.Cleanup(func() { close(gate) })

	running, err := q.Submit(gatedJob(gate))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return running.Status().State == TaskRunning }, time.Second, 5*time.Millisecond)

	_, err = q.Submit(gatedJob(gate))
	require.NoError(t, err)

	_, err = q.Submit(gatedJob(gate))
	require.ErrorIs(t, err, models.ErrQueueFull)
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_waitHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	q := NewQueue(1, 1)
	t.Cleanup(func() { _ = q.Close() })
	t.Cleanup(func() { close(gate) })

	task, err := q.Submit(gatedJob(gate))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = task.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.NotEqual(t, TaskSucceeded, task.Status().State)
}

func TestQueue_closeDrains(t *testing.T) {
	var ran atomic.Int32
	q := NewQueue(1, 8)
	tasks := make([]*Task, 0, 5)
	for i := 0; i < 5; i++ {
		task, err := q.Submit(func(ctx context.Context) (*models.IngestResult, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return &models.IngestResult{}, nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	require.NoError(t, q.Close())
	assert.Equal(t, int32(5), ran.Load())
	for _, task := range tasks {
		assert.Equal(t, TaskSucceeded, task.Status().State)
	}

	_, err := q.Submit(okJob(1))
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, q.Close())
}

func TestQueue_retainForgetsOldFinishedTasks(t *testing.T) {
	q := NewQueue(1, 4, WithRetain(2))
	t.Cleanup(func() { _ = q.Close() })

	var ids []string
	for i := 0; i < 4; i++ {
		task, err := q.Submit(okJob(i))
		require.NoError(t, err)
		_, err = task.Wait(context.Background())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	_, ok := q.Get(ids[0])
	assert.False(t, ok)
	_, ok = q.Get(ids[3])
	assert.True(t, ok)
}

func TestQueue_ingestFilesJob(t *testing.T) {
	uploads := t.TempDir()
	idx, store, _ := newTestIndexer(t, WithUploadDir(uploads))
	q := NewQueue(1, 1)
	t.Cleanup(func() { _ = q.Close() })

	p := writeFile(t, uploads, "a.txt", "The sky is blue.")
	task, err := q.Submit(func(ctx context.Context) (*models.IngestResult, error) {
		return idx.IngestFiles(ctx, []string{p})
	})
	require.NoError(t, err)
	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, []string{"a.txt"}, snapshotOf(t, store).DocumentIDs())
}
