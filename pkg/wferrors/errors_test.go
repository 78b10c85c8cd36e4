package wferrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/workflowengine/pkg/wferrors"
)

func TestSuggestNames_OrdersByDistanceThenLexical(t *testing.T) {
	got := wferrors.SuggestNames("fetch-user", []string{"fetch-users", "fetch-order", "fetch-user-v2", "unrelated"}, 2)
	assert.Equal(t, []string{"fetch-users", "fetch-order"}, got)
}

func TestSuggestNames_LimitCaps(t *testing.T) {
	got := wferrors.SuggestNames("x", []string{"a", "b", "c"}, 1)
	assert.Len(t, got, 1)
}

func TestAggregate_UnwrapReachesIndividualErrors(t *testing.T) {
	agg := &wferrors.Aggregate{}
	agg.Add(&wferrors.CycleDetected{Path: []string{"a", "b", "a"}})
	agg.Add(&wferrors.DuplicateInvocationID{ID: "a", Occurrences: 2})

	var cycle *wferrors.CycleDetected
	assert.True(t, errors.As(agg.AsError(), &cycle))
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)

	var dup *wferrors.DuplicateInvocationID
	assert.True(t, errors.As(agg.AsError(), &dup))
}

func TestAggregate_AsErrorNilWhenEmpty(t *testing.T) {
	agg := &wferrors.Aggregate{}
	assert.Nil(t, agg.AsError())
}

func TestTaskFailed_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &wferrors.TaskFailed{InvocationID: "a", Cause: cause}
	assert.ErrorIs(t, err, cause)
}
