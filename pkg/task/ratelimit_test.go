package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/lyzr/workflowengine/pkg/task"
)

func TestLimiters_SeparateBucketsPerTaskName(t *testing.T) {
	limiters := task.NewLimiters(rate.Every(time.Hour), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, limiters.Wait(ctx, "task-a"))
	require.NoError(t, limiters.Wait(ctx, "task-b"))
}

func TestLimiters_BlocksSecondCallUntilRefill(t *testing.T) {
	limiters := task.NewLimiters(rate.Limit(20), 1)

	require.NoError(t, limiters.Wait(context.Background(), "task-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := limiters.Wait(ctx, "task-a")
	assert.Error(t, err)
}
