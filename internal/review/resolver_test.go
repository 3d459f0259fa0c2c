// internal/review/resolver_test.go
package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-issue-mirror/internal/model"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestResolve_AnchorFallbackViaReplyChain(t *testing.T) {
	raw := []model.RawReviewComment{
		{ID: 50, Path: "pkg/store/store.go", Body: "parent", Line: intPtr(10), Side: "LEFT"},
		{ID: 51, Path: "pkg/store/store.go", Body: "reply", InReplyTo: int64Ptr(50)},
	}

	out := Resolve(raw, nil)
	require.Len(t, out, 2)

	parent, reply := out[0], out[1]
	assert.True(t, parent.Anchored)
	assert.Equal(t, 10, parent.Line)
	assert.Equal(t, model.SideLeft, parent.Side)

	assert.True(t, reply.Anchored, "reply must inherit the parent's anchor")
	assert.Equal(t, 10, reply.Line)
	assert.Equal(t, model.SideLeft, reply.Side)
}

func TestResolve_OriginalLineFallback(t *testing.T) {
	raw := []model.RawReviewComment{
		{ID: 1, Path: "main.go", Line: nil, OriginalLine: intPtr(42), Side: "RIGHT"},
	}

	out := Resolve(raw, nil)
	require.Len(t, out, 1)
	assert.True(t, out[0].Anchored)
	assert.Equal(t, 42, out[0].Line)
	assert.Equal(t, model.SideRight, out[0].Side)
}

func TestResolve_UnanchoredCommentsAreKept(t *testing.T) {
	t.Run("no line and no parent", func(t *testing.T) {
		raw := []model.RawReviewComment{
			{ID: 1, Path: "main.go", Body: "orphan"},
		}

		out := Resolve(raw, nil)
		require.Len(t, out, 1)
		assert.False(t, out[0].Anchored)
		assert.Zero(t, out[0].Line)
		assert.Equal(t, model.SideRight, out[0].Side)
		assert.Equal(t, "main.go", out[0].Path)
	})

	t.Run("parent is itself unanchored", func(t *testing.T) {
		raw := []model.RawReviewComment{
			{ID: 1, Path: "main.go"},
			{ID: 2, Path: "main.go", InReplyTo: int64Ptr(1)},
		}

		out := Resolve(raw, nil)
		require.Len(t, out, 2)
		assert.False(t, out[1].Anchored)
		assert.Zero(t, out[1].Line)
	})
}

func TestResolve_DefaultsSideToRight(t *testing.T) {
	raw := []model.RawReviewComment{
		{ID: 1, Path: "main.go", Line: intPtr(5)},
	}

	out := Resolve(raw, nil)
	require.Len(t, out, 1)
	assert.Equal(t, model.SideRight, out[0].Side)
}

func TestResolve_MergesThreadMetadata(t *testing.T) {
	raw := []model.RawReviewComment{
		{ID: 1, Path: "main.go", Line: intPtr(5)},
		{ID: 2, Path: "main.go", Line: intPtr(9)},
	}
	threads := map[int64]model.ThreadInfo{
		1: {ThreadID: "T_abc", Resolved: true},
	}

	out := Resolve(raw, threads)
	require.Len(t, out, 2)

	assert.Equal(t, "T_abc", out[0].ThreadID)
	assert.True(t, out[0].Resolved)

	// Absent from the thread map: no thread info, never an error.
	assert.Empty(t, out[1].ThreadID)
	assert.False(t, out[1].Resolved)
}

func TestResolve_PreservesCommentFields(t *testing.T) {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	raw := []model.RawReviewComment{
		{ID: 7, Path: "a.go", Body: "looks wrong", Author: "amy", CreatedAt: created, Line: intPtr(3), Side: "left"},
	}

	out := Resolve(raw, nil)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].ID)
	assert.Equal(t, "looks wrong", out[0].Body)
	assert.Equal(t, "amy", out[0].Author)
	assert.True(t, out[0].CreatedAt.Equal(created))
	assert.Equal(t, model.SideLeft, out[0].Side)
}
