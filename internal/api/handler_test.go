// internal/api/handler_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-issue-mirror/internal/model"
	"github-issue-mirror/internal/store"
)

func setupTestServer(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := httptest.NewServer(NewRouter(st, logger))
	t.Cleanup(server.Close)
	return st, server
}

func TestHealthCheck(t *testing.T) {
	_, server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetIssues(t *testing.T) {
	st, server := setupTestServer(t)
	ctx := context.Background()

	t.Run("unknown repository is a 404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/repos/acme/widgets/issues")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets"}))
	require.NoError(t, st.UpsertIssue(ctx, &model.Issue{
		ID: 101, RepoID: 1, Number: 7, State: "open", Title: "panic on start",
		UpdatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}))

	t.Run("returns cached issues", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/repos/acme/widgets/issues")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var issues []model.Issue
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&issues))
		require.Len(t, issues, 1)
		assert.Equal(t, 7, issues[0].Number)
	})
}

func TestGetComments(t *testing.T) {
	st, server := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets"}))
	require.NoError(t, st.UpsertIssue(ctx, &model.Issue{ID: 101, RepoID: 1, Number: 7, State: "open", Title: "t"}))
	require.NoError(t, st.UpsertComment(ctx, &model.Comment{ID: 1, IssueID: 101, Author: "amy", Body: "hello"}))

	t.Run("bad id is a 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/issues/abc/comments")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("returns thread-ordered comments", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/issues/101/comments")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var comments []model.Comment
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&comments))
		require.Len(t, comments, 1)
		assert.Equal(t, "amy", comments[0].Author)
	})
}

func TestSearch(t *testing.T) {
	st, server := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets"}))
	require.NoError(t, st.UpsertIssue(ctx, &model.Issue{ID: 101, RepoID: 1, Number: 7, State: "open", Title: "watchdog timeout"}))

	t.Run("missing query is a 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/search")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("returns hits", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/search?q=watchdog")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var hits []store.SearchHit
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&hits))
		require.Len(t, hits, 1)
		assert.Equal(t, int64(101), hits[0].IssueID)
	})
}
