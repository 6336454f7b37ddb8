package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLooping(t *testing.T) {
	h := entries("search", "x", "search", "y", "search", "z", "other", "w")
	assert.True(t, IsLooping(h, "search"))
	assert.False(t, IsLooping(h, "other"))
	assert.False(t, IsLooping(h, "fetch"))

	assert.False(t, IsLooping(nil, "search"))
	assert.False(t, IsLooping(entries("search", "x"), "search"))
	assert.True(t, IsLooping(entries("search", "x", "search", "y"), "search"))
}

func TestIsLoopingWindow(t *testing.T) {
	// Only the last four actions count.
	h := entries("search", "1", "search", "2", "a", "3", "b", "4", "c", "5", "d", "6")
	assert.False(t, IsLooping(h, "search"))
}

func TestIsLoopingSkipsSynthetic(t *testing.T) {
	h := entries("search", "x")
	h = append(h, HistoryEntry{Action: "search", Observation: "warning", Synthetic: true})
	assert.False(t, IsLooping(h, "search"))
}

func TestRecentActions(t *testing.T) {
	h := entries("a", "1", "b", "2", "c", "3")
	assert.Equal(t, []string{"b", "c"}, recentActions(h, 2))
	assert.Equal(t, []string{"a", "b", "c"}, recentActions(h, 10))
	assert.Empty(t, recentActions(nil, 3))
}

func TestRecentObservations(t *testing.T) {
	h := entries("a", "1", "b", "2")
	h = append(h, HistoryEntry{Action: loopWarningAction, Observation: "stop", Synthetic: true})
	assert.Equal(t, []string{"1", "2"}, recentObservations(h, 3))
}

func TestRepeatedAction(t *testing.T) {
	name, n, ok := repeatedAction([]string{"a", "b", "a", "c", "a"}, 3)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	assert.Equal(t, 3, n)

	_, _, ok = repeatedAction([]string{"a", "b", "a"}, 3)
	assert.False(t, ok)
}

func TestIsAlternating(t *testing.T) {
	assert.True(t, isAlternating([]string{"a", "b", "a", "b"}))
	assert.False(t, isAlternating([]string{"a", "a", "a", "a"}))
	assert.False(t, isAlternating([]string{"a", "b", "a"}))
	assert.False(t, isAlternating([]string{"a", "b", "b", "a"}))
}

func TestFollowsPattern(t *testing.T) {
	assert.True(t, followsPattern([]string{"a", "b", "c", "a", "b", "c"}, 3))
	assert.False(t, followsPattern([]string{"a", "b", "c", "a", "b"}, 3))
	assert.False(t, followsPattern(nil, 0))
}
