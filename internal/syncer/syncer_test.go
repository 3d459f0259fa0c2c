// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-issue-mirror/internal/apperrors"
	"github-issue-mirror/internal/model"
	"github-issue-mirror/internal/store"
)

var errUnexpectedCall = errors.New("unexpected API call")

// fakeAPI is a deterministic RemoteAPI double. Only the function fields a
// test sets are callable; everything else reports an unexpected call.
type fakeAPI struct {
	getRepo            func(owner, name string) (*model.Repo, error)
	listIssuesPage     func(owner, name string, page int, etag string, since time.Time) (*model.IssuesPage, error)
	listComments       func(owner, name string, number int) ([]model.Comment, error)
	listReviewComments func(owner, name string, number int) ([]model.RawReviewComment, error)
	listReviewThreads  func(owner, name string, number int) (map[int64]model.ThreadInfo, error)
	createComment      func(owner, name string, number int, body string) (*model.Comment, error)
	deleteComment      func(owner, name string, commentID int64) error
	setIssueState      func(owner, name string, number int, state string) error
}

func (f *fakeAPI) GetRepo(_ context.Context, owner, name string) (*model.Repo, error) {
	if f.getRepo == nil {
		return nil, errUnexpectedCall
	}
	return f.getRepo(owner, name)
}

func (f *fakeAPI) ListIssuesPage(_ context.Context, owner, name string, page int, etag string, since time.Time) (*model.IssuesPage, error) {
	if f.listIssuesPage == nil {
		return nil, errUnexpectedCall
	}
	return f.listIssuesPage(owner, name, page, etag, since)
}

func (f *fakeAPI) ListComments(_ context.Context, owner, name string, number int) ([]model.Comment, error) {
	if f.listComments == nil {
		return nil, errUnexpectedCall
	}
	return f.listComments(owner, name, number)
}

func (f *fakeAPI) ListPullRequestFiles(_ context.Context, _, _ string, _ int) ([]model.PullRequestFile, error) {
	return nil, errUnexpectedCall
}

func (f *fakeAPI) ListReviewComments(_ context.Context, owner, name string, number int) ([]model.RawReviewComment, error) {
	if f.listReviewComments == nil {
		return nil, errUnexpectedCall
	}
	return f.listReviewComments(owner, name, number)
}

func (f *fakeAPI) ListReviewThreads(_ context.Context, owner, name string, number int) (map[int64]model.ThreadInfo, error) {
	if f.listReviewThreads == nil {
		return nil, errUnexpectedCall
	}
	return f.listReviewThreads(owner, name, number)
}

func (f *fakeAPI) SetThreadResolved(_ context.Context, _ string, _ bool) error { return errUnexpectedCall }

func (f *fakeAPI) CreateComment(_ context.Context, owner, name string, number int, body string) (*model.Comment, error) {
	if f.createComment == nil {
		return nil, errUnexpectedCall
	}
	return f.createComment(owner, name, number, body)
}

func (f *fakeAPI) UpdateComment(_ context.Context, _, _ string, _ int64, _ string) error {
	return errUnexpectedCall
}

func (f *fakeAPI) DeleteComment(_ context.Context, owner, name string, commentID int64) error {
	if f.deleteComment == nil {
		return errUnexpectedCall
	}
	return f.deleteComment(owner, name, commentID)
}

func (f *fakeAPI) ListLabels(_ context.Context, _, _ string) ([]string, error) {
	return nil, errUnexpectedCall
}

func (f *fakeAPI) ListAssignees(_ context.Context, _, _ string) ([]string, error) {
	return nil, errUnexpectedCall
}

func (f *fakeAPI) SetLabels(_ context.Context, _, _ string, _ int, _ []string) error {
	return errUnexpectedCall
}

func (f *fakeAPI) SetAssignees(_ context.Context, _, _ string, _ int, _ []string) error {
	return errUnexpectedCall
}

func (f *fakeAPI) SetIssueState(_ context.Context, owner, name string, number int, state string) error {
	if f.setIssueState == nil {
		return errUnexpectedCall
	}
	return f.setIssueState(owner, name, number, state)
}

func (f *fakeAPI) ViewerPermission(_ context.Context, _, _ string) (string, error) {
	return "", errUnexpectedCall
}

func (f *fakeAPI) MergeMethods(_ context.Context, _, _ string) ([]string, error) {
	return nil, errUnexpectedCall
}

func (f *fakeAPI) Merge(_ context.Context, _, _ string, _ int, _ string) error {
	return errUnexpectedCall
}

func newTestSyncer(t *testing.T, api RemoteAPI) (*Syncer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, api, 720*time.Hour, 5000, logger), st
}

func pageOf(etag string, issues ...model.Issue) *model.IssuesPage {
	return &model.IssuesPage{Issues: issues, ETag: etag}
}

func TestSyncRepository_PartialPagination(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	api := &fakeAPI{
		getRepo: func(owner, name string) (*model.Repo, error) {
			return &model.Repo{ID: 1, Owner: owner, Name: name}, nil
		},
		listIssuesPage: func(_, _ string, page int, _ string, _ time.Time) (*model.IssuesPage, error) {
			switch page {
			case 1:
				return pageOf("E-p1", model.Issue{ID: 101, Number: 1, State: "open", Title: "one", UpdatedAt: baseTime}), nil
			case 2:
				return pageOf("E-p2", model.Issue{ID: 102, Number: 2, State: "open", Title: "two", UpdatedAt: baseTime.Add(time.Hour)}), nil
			default:
				return nil, errors.New("server error")
			}
		},
	}
	s, st := newTestSyncer(t, api)

	preCursor := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets", UpdatedAt: preCursor, ETag: "E0"}))

	stats, err := s.SyncRepository(ctx, "acme", "widgets")
	require.NoError(t, err, "truncated pagination reports success")
	assert.Equal(t, 2, stats.Issues)
	assert.False(t, stats.NotModified)

	issues, err := st.ListIssues(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, issues, 2, "pages before the failure stay cached")

	repo, err := st.GetRepoBySlug(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "E0", repo.ETag, "cursor must not move on a truncated sync")
	assert.True(t, repo.UpdatedAt.Equal(preCursor))
}

func TestSyncRepository_FirstPageFailureIsFatal(t *testing.T) {
	api := &fakeAPI{
		getRepo: func(owner, name string) (*model.Repo, error) {
			return &model.Repo{ID: 1, Owner: owner, Name: name}, nil
		},
		listIssuesPage: func(_, _ string, _ int, _ string, _ time.Time) (*model.IssuesPage, error) {
			return nil, errors.New("server error")
		},
	}
	s, st := newTestSyncer(t, api)

	_, err := s.SyncRepository(context.Background(), "acme", "widgets")
	require.Error(t, err)

	issues, listErr := st.ListIssues(context.Background(), 1)
	require.NoError(t, listErr)
	assert.Empty(t, issues)
}

func TestSyncRepository_NotModifiedShortCircuit(t *testing.T) {
	ctx := context.Background()
	preCursor := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	api := &fakeAPI{
		getRepo: func(owner, name string) (*model.Repo, error) {
			return &model.Repo{ID: 1, Owner: owner, Name: name}, nil
		},
		listIssuesPage: func(_, _ string, page int, etag string, _ time.Time) (*model.IssuesPage, error) {
			if page == 1 && etag == "E1" {
				return nil, apperrors.ErrNotModified
			}
			return nil, errUnexpectedCall
		},
	}
	s, st := newTestSyncer(t, api)
	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets", UpdatedAt: preCursor, ETag: "E1"}))

	stats, err := s.SyncRepository(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.True(t, stats.NotModified)
	assert.Zero(t, stats.Issues)
	assert.Zero(t, stats.PullRequests)

	repo, err := st.GetRepoBySlug(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "E1", repo.ETag)
	assert.True(t, repo.UpdatedAt.Equal(preCursor))
}

func TestSyncRepository_CursorAdvancesOnFullSuccess(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(3 * time.Hour)

	api := &fakeAPI{
		getRepo: func(owner, name string) (*model.Repo, error) {
			return &model.Repo{ID: 1, Owner: owner, Name: name}, nil
		},
		listIssuesPage: func(_, _ string, page int, _ string, _ time.Time) (*model.IssuesPage, error) {
			switch page {
			case 1:
				return pageOf("E-p1",
					model.Issue{ID: 101, Number: 1, State: "open", Title: "one", UpdatedAt: t2},
					model.Issue{ID: 102, Number: 2, State: "open", Title: "two", UpdatedAt: t1}), nil
			default:
				// A short page still asks for the next one; only an empty
				// page means exhaustion.
				return pageOf("E-final"), nil
			}
		},
	}
	s, st := newTestSyncer(t, api)

	stats, err := s.SyncRepository(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Issues)
	assert.Equal(t, 2, stats.Pages)

	repo, err := st.GetRepoBySlug(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "E-final", repo.ETag)
	assert.True(t, repo.UpdatedAt.Equal(t2), "cursor is the max updated_at among fetched issues")
}

func TestSyncRepository_TagsPullRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	api := &fakeAPI{
		getRepo: func(owner, name string) (*model.Repo, error) {
			return &model.Repo{ID: 1, Owner: owner, Name: name}, nil
		},
		listIssuesPage: func(_, _ string, page int, _ string, _ time.Time) (*model.IssuesPage, error) {
			if page > 1 {
				return pageOf(""), nil
			}
			return pageOf("E",
				model.Issue{ID: 101, Number: 1, State: "open", Title: "plain", UpdatedAt: now},
				model.Issue{ID: 102, Number: 2, State: "merged", Title: "merged pr", UpdatedAt: now, IsPullRequest: true},
				model.Issue{ID: 103, Number: 3, State: "open", Title: "open pr", UpdatedAt: now, IsPullRequest: true}), nil
		},
	}
	s, st := newTestSyncer(t, api)

	stats, err := s.SyncRepository(ctx, "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Issues)
	assert.Equal(t, 2, stats.PullRequests)

	merged, err := st.GetIssueByNumber(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.True(t, merged.IsPullRequest)
	assert.Equal(t, model.StateMerged, merged.State)

	plain, err := st.GetIssueByNumber(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, plain.IsPullRequest)
}

func TestSyncRepository_MetadataFailureDegradesToCachedRow(t *testing.T) {
	ctx := context.Background()

	t.Run("with a cached row the sync proceeds", func(t *testing.T) {
		api := &fakeAPI{
			getRepo: func(_, _ string) (*model.Repo, error) {
				return nil, errors.New("boom")
			},
			listIssuesPage: func(_, _ string, page int, _ string, _ time.Time) (*model.IssuesPage, error) {
				if page > 1 {
					return pageOf(""), nil
				}
				return pageOf("E", model.Issue{ID: 101, Number: 1, State: "open", Title: "one",
					UpdatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}), nil
			},
		}
		s, st := newTestSyncer(t, api)
		require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets"}))

		stats, err := s.SyncRepository(ctx, "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Issues)
	})

	t.Run("without a cached row the sync fails", func(t *testing.T) {
		api := &fakeAPI{
			getRepo: func(_, _ string) (*model.Repo, error) {
				return nil, errors.New("boom")
			},
		}
		s, _ := newTestSyncer(t, api)

		_, err := s.SyncRepository(ctx, "acme", "widgets")
		require.Error(t, err)
	})
}

func seedIssue(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertRepo(ctx, &model.Repo{ID: 1, Owner: "acme", Name: "widgets"}))
	require.NoError(t, st.UpsertIssue(ctx, &model.Issue{ID: 101, RepoID: 1, Number: 7, State: "open", Title: "t"}))
}

func TestSyncComments(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("caches, stamps and recounts", func(t *testing.T) {
		api := &fakeAPI{
			listComments: func(_, _ string, number int) ([]model.Comment, error) {
				assert.Equal(t, 7, number)
				return []model.Comment{
					{ID: 1, Author: "amy", Body: "first", CreatedAt: created},
					{ID: 2, Author: "bot", AuthorType: "Bot", Body: "second", CreatedAt: created.Add(time.Minute)},
				}, nil
			},
		}
		s, st := newTestSyncer(t, api)
		seedIssue(t, st)

		require.NoError(t, s.SyncComments(ctx, "acme", "widgets", 7))

		comments, err := st.CommentsForIssue(ctx, 101)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		for _, c := range comments {
			assert.NotZero(t, c.LastAccessedAt, "every comment is stamped")
		}

		issue, err := st.GetIssue(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, 2, issue.CommentsCount)
	})

	t.Run("fetch failure leaves the cache alone", func(t *testing.T) {
		api := &fakeAPI{
			listComments: func(_, _ string, _ int) ([]model.Comment, error) {
				return nil, errors.New("boom")
			},
		}
		s, st := newTestSyncer(t, api)
		seedIssue(t, st)
		require.NoError(t, st.UpsertComment(ctx, &model.Comment{ID: 1, IssueID: 101, Body: "kept"}))

		require.Error(t, s.SyncComments(ctx, "acme", "widgets", 7))

		comments, err := st.CommentsForIssue(ctx, 101)
		require.NoError(t, err)
		require.Len(t, comments, 1)
		assert.Zero(t, comments[0].LastAccessedAt, "failed fetch must not stamp or evict")
	})

	t.Run("unknown issue is an error", func(t *testing.T) {
		s, _ := newTestSyncer(t, &fakeAPI{})
		require.Error(t, s.SyncComments(ctx, "acme", "widgets", 7))
	})
}

func TestSyncReviewComments(t *testing.T) {
	ctx := context.Background()
	line := 10

	t.Run("merges thread state", func(t *testing.T) {
		api := &fakeAPI{
			listReviewComments: func(_, _ string, _ int) ([]model.RawReviewComment, error) {
				return []model.RawReviewComment{{ID: 50, Path: "a.go", Line: &line, Side: "LEFT"}}, nil
			},
			listReviewThreads: func(_, _ string, _ int) (map[int64]model.ThreadInfo, error) {
				return map[int64]model.ThreadInfo{50: {ThreadID: "T_1", Resolved: true}}, nil
			},
		}
		s, _ := newTestSyncer(t, api)

		out, err := s.SyncReviewComments(ctx, "acme", "widgets", 7)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "T_1", out[0].ThreadID)
		assert.True(t, out[0].Resolved)
		assert.Equal(t, 10, out[0].Line)
	})

	t.Run("thread lookup failure degrades to no thread info", func(t *testing.T) {
		api := &fakeAPI{
			listReviewComments: func(_, _ string, _ int) ([]model.RawReviewComment, error) {
				return []model.RawReviewComment{{ID: 50, Path: "a.go", Line: &line}}, nil
			},
			listReviewThreads: func(_, _ string, _ int) (map[int64]model.ThreadInfo, error) {
				return nil, errors.New("graphql down")
			},
		}
		s, _ := newTestSyncer(t, api)

		out, err := s.SyncReviewComments(ctx, "acme", "widgets", 7)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Empty(t, out[0].ThreadID)
		assert.False(t, out[0].Resolved)
	})

	t.Run("comment fetch failure fails the sync", func(t *testing.T) {
		api := &fakeAPI{
			listReviewComments: func(_, _ string, _ int) ([]model.RawReviewComment, error) {
				return nil, errors.New("boom")
			},
			listReviewThreads: func(_, _ string, _ int) (map[int64]model.ThreadInfo, error) {
				return nil, nil
			},
		}
		s, _ := newTestSyncer(t, api)

		_, err := s.SyncReviewComments(ctx, "acme", "widgets", 7)
		require.Error(t, err)
	})
}

func TestCreateComment_WritesThrough(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{
		createComment: func(_, _ string, number int, body string) (*model.Comment, error) {
			return &model.Comment{ID: 900, Author: "me", Body: body,
				CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}, nil
		},
	}
	s, st := newTestSyncer(t, api)
	seedIssue(t, st)

	created, err := s.CreateComment(ctx, "acme", "widgets", 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(101), created.IssueID)

	issue, err := st.GetIssue(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, 1, issue.CommentsCount)
}

func TestDeleteComment_RemoteFailureKeepsCache(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{
		deleteComment: func(_, _ string, _ int64) error { return errors.New("forbidden") },
	}
	s, st := newTestSyncer(t, api)
	seedIssue(t, st)
	require.NoError(t, st.UpsertComment(ctx, &model.Comment{ID: 1, IssueID: 101, Body: "kept"}))

	require.Error(t, s.DeleteComment(ctx, "acme", "widgets", 1))

	comments, err := st.CommentsForIssue(ctx, 101)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestSetIssueState_PatchesCachedRow(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{
		setIssueState: func(_, _ string, _ int, state string) error {
			assert.Equal(t, model.StateClosed, state)
			return nil
		},
	}
	s, st := newTestSyncer(t, api)
	seedIssue(t, st)

	require.NoError(t, s.SetIssueState(ctx, "acme", "widgets", 7, model.StateClosed))

	issue, err := st.GetIssueByNumber(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StateClosed, issue.State)
}

func TestSplitSlug(t *testing.T) {
	owner, name, err := SplitSlug("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)

	for _, bad := range []string{"acme", "acme/", "/widgets", "a/b/c", ""} {
		_, _, err := SplitSlug(bad)
		assert.Error(t, err, bad)
	}
}
