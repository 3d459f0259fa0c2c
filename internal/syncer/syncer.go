// internal/syncer/syncer.go

// Package syncer drives repository synchronization: the full conditional
// paginated issue sync plus the narrower per-issue and per-pull-request
// sub-syncs, and the write-through paths for outgoing edits.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github-issue-mirror/internal/apperrors"
	"github-issue-mirror/internal/model"
	"github-issue-mirror/internal/review"
	"github-issue-mirror/internal/store"
)

// RemoteAPI is the remote service contract the syncer consumes. The real
// implementation lives in internal/gh; tests substitute a deterministic fake.
type RemoteAPI interface {
	GetRepo(ctx context.Context, owner, name string) (*model.Repo, error)
	ListIssuesPage(ctx context.Context, owner, name string, page int, etag string, since time.Time) (*model.IssuesPage, error)
	ListComments(ctx context.Context, owner, name string, number int) ([]model.Comment, error)
	ListPullRequestFiles(ctx context.Context, owner, name string, number int) ([]model.PullRequestFile, error)
	ListReviewComments(ctx context.Context, owner, name string, number int) ([]model.RawReviewComment, error)
	ListReviewThreads(ctx context.Context, owner, name string, number int) (map[int64]model.ThreadInfo, error)
	SetThreadResolved(ctx context.Context, threadID string, resolved bool) error
	CreateComment(ctx context.Context, owner, name string, number int, body string) (*model.Comment, error)
	UpdateComment(ctx context.Context, owner, name string, commentID int64, body string) error
	DeleteComment(ctx context.Context, owner, name string, commentID int64) error
	ListLabels(ctx context.Context, owner, name string) ([]string, error)
	ListAssignees(ctx context.Context, owner, name string) ([]string, error)
	SetLabels(ctx context.Context, owner, name string, number int, labels []string) error
	SetAssignees(ctx context.Context, owner, name string, number int, assignees []string) error
	SetIssueState(ctx context.Context, owner, name string, number int, state string) error
	ViewerPermission(ctx context.Context, owner, name string) (string, error)
	MergeMethods(ctx context.Context, owner, name string) ([]string, error)
	Merge(ctx context.Context, owner, name string, number int, method string) error
}

// RepoAccess reports the viewer's standing on a repository. Both fields are
// best-effort and may be empty when probing failed.
type RepoAccess struct {
	Permission   string
	MergeMethods []string
}

// Syncer orchestrates sync operations against one store handle.
type Syncer struct {
	store      *store.Store
	api        RemoteAPI
	logger     *slog.Logger
	commentTTL time.Duration
	commentCap int
	now        func() time.Time
}

// New creates a new Syncer instance.
func New(st *store.Store, api RemoteAPI, commentTTL time.Duration, commentCap int, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:      st,
		api:        api,
		logger:     logger.With("component", "syncer"),
		commentTTL: commentTTL,
		commentCap: commentCap,
		now:        time.Now,
	}
}

// SplitSlug parses an "owner/name" repository slug.
func SplitSlug(slug string) (owner, name string, err error) {
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &apperrors.ErrInvalidRepoFormat{Repo: slug}
	}
	return parts[0], parts[1], nil
}

// SyncRepository runs one full repository sync: a metadata refresh followed
// by a conditional paginated walk of the issue list.
//
// Issues are upserted page by page, so a mid-pagination failure keeps the
// earlier pages cached; the sync then reports the truncated result as
// success. The repository's (updated_at, etag) cursor moves only when
// pagination reached natural exhaustion, which keeps the cursor trustworthy
// at the cost of a redundant re-walk after a truncated sync.
func (s *Syncer) SyncRepository(ctx context.Context, owner, name string) (*model.SyncStats, error) {
	log := s.logger.With("repo", owner+"/"+name)

	cached, err := s.store.GetRepoBySlug(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	repo, err := s.api.GetRepo(ctx, owner, name)
	if err != nil {
		if cached == nil {
			return nil, fmt.Errorf("fetch repo metadata: %w", err)
		}
		// A cached row is a good enough identity to sync against; only the
		// staleness-tolerant permission and merge-method paths miss out.
		log.Warn("metadata refresh failed, syncing against cached repo row", "error", err)
		repo = cached
	}
	if err := s.store.UpsertRepo(ctx, repo); err != nil {
		return nil, err
	}

	var cursorUpdatedAt time.Time
	var cursorETag string
	if cached != nil {
		cursorUpdatedAt = cached.UpdatedAt
		cursorETag = cached.ETag
	}

	stats := &model.SyncStats{}
	maxUpdated := cursorUpdatedAt
	lastETag := cursorETag
	exhausted := false

	for page := 1; ; page++ {
		etag := ""
		if page == 1 {
			etag = cursorETag
		}
		result, err := s.api.ListIssuesPage(ctx, owner, name, page, etag, cursorUpdatedAt)
		if errors.Is(err, apperrors.ErrNotModified) {
			// First page only; the stored cursor already matches the remote.
			stats.NotModified = true
			log.Debug("issue listing not modified")
			return stats, nil
		}
		if err != nil {
			if stats.Pages == 0 {
				return nil, fmt.Errorf("list issues page %d: %w", page, err)
			}
			log.Warn("pagination failed mid-stream, keeping fetched pages", "page", page, "error", err)
			break
		}

		stats.Pages++
		if result.ETag != "" {
			lastETag = result.ETag
		}
		if len(result.Issues) == 0 {
			exhausted = true
			break
		}

		for i := range result.Issues {
			issue := result.Issues[i]
			issue.RepoID = repo.ID
			if err := s.store.UpsertIssue(ctx, &issue); err != nil {
				return nil, err
			}
			if issue.IsPullRequest {
				stats.PullRequests++
			} else {
				stats.Issues++
			}
			if issue.UpdatedAt.After(maxUpdated) {
				maxUpdated = issue.UpdatedAt
			}
		}
		log.Debug("synced issue page", "page", page, "issues", len(result.Issues))
	}

	if exhausted {
		if err := s.store.UpdateRepoCursor(ctx, repo.ID, maxUpdated, lastETag); err != nil {
			return nil, err
		}
	}

	log.Info("repository sync finished",
		"issues", stats.Issues, "pull_requests", stats.PullRequests,
		"pages", stats.Pages, "cursor_advanced", exhausted)
	return stats, nil
}

// SyncComments refreshes one issue's comments, stamps their access time and
// finishes with a retention pass. Eviction runs only after a successful
// fetch: a failed fetch must not reap comments the user may be reading.
func (s *Syncer) SyncComments(ctx context.Context, owner, name string, issueNumber int) error {
	issue, err := s.cachedIssue(ctx, owner, name, issueNumber)
	if err != nil {
		return err
	}

	comments, err := s.api.ListComments(ctx, owner, name, issueNumber)
	if err != nil {
		return fmt.Errorf("list comments for #%d: %w", issueNumber, err)
	}

	now := s.now()
	for i := range comments {
		comments[i].IssueID = issue.ID
		comments[i].LastAccessedAt = now.Unix()
		if err := s.store.UpsertComment(ctx, &comments[i]); err != nil {
			return err
		}
	}
	// Comments the remote no longer reports keep their rows but are stamped
	// too; the viewed issue's whole thread is protected from TTL eviction.
	if err := s.store.TouchComments(ctx, issue.ID, now); err != nil {
		return err
	}
	if err := s.store.RecountComments(ctx, issue.ID); err != nil {
		return err
	}

	evicted, err := s.store.EvictComments(ctx, s.commentTTL, s.commentCap, now)
	if err != nil {
		return err
	}
	if evicted > 0 {
		s.logger.Debug("evicted comments", "count", evicted)
	}
	return nil
}

// SyncReviewComments fetches a pull request's review comments and thread
// state over their two independent endpoints and merges them into anchored
// records. The thread leg is best-effort: its failure degrades to "no thread
// info" instead of failing the sync.
func (s *Syncer) SyncReviewComments(ctx context.Context, owner, name string, number int) ([]model.ReviewComment, error) {
	var raw []model.RawReviewComment
	var threads map[int64]model.ThreadInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = s.api.ListReviewComments(gctx, owner, name, number)
		if err != nil {
			return fmt.Errorf("list review comments for #%d: %w", number, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		threads, err = s.api.ListReviewThreads(gctx, owner, name, number)
		if err != nil {
			s.logger.Warn("review thread lookup failed, continuing without thread state",
				"pr", number, "error", err)
			threads = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return review.Resolve(raw, threads), nil
}

// SyncFiles fetches a pull request's changed files.
func (s *Syncer) SyncFiles(ctx context.Context, owner, name string, number int) ([]model.PullRequestFile, error) {
	files, err := s.api.ListPullRequestFiles(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("list files for #%d: %w", number, err)
	}
	return files, nil
}

// SyncLabelsAndAssignees fetches the repository's label and assignee pools
// in parallel.
func (s *Syncer) SyncLabelsAndAssignees(ctx context.Context, owner, name string) (labels, assignees []string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		labels, err = s.api.ListLabels(gctx, owner, name)
		return err
	})
	g.Go(func() error {
		var err error
		assignees, err = s.api.ListAssignees(gctx, owner, name)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("list labels/assignees: %w", err)
	}
	return labels, assignees, nil
}

// SyncAccess probes the viewer's permission level and the repository's
// allowed merge methods. Both probes are best-effort and degrade to empty.
func (s *Syncer) SyncAccess(ctx context.Context, owner, name string) RepoAccess {
	var access RepoAccess

	perm, err := s.api.ViewerPermission(ctx, owner, name)
	if err != nil {
		s.logger.Warn("permission probe failed", "repo", owner+"/"+name, "error", err)
	} else {
		access.Permission = perm
	}

	methods, err := s.api.MergeMethods(ctx, owner, name)
	if err != nil {
		s.logger.Warn("merge method probe failed", "repo", owner+"/"+name, "error", err)
	} else {
		access.MergeMethods = methods
	}
	return access
}

// --- Outgoing writes ---
//
// Writes are fire-and-forget against the remote: the remote call goes first,
// and only its success is written through to the cache.

// CreateComment posts a comment and caches the created row.
func (s *Syncer) CreateComment(ctx context.Context, owner, name string, issueNumber int, body string) (*model.Comment, error) {
	issue, err := s.cachedIssue(ctx, owner, name, issueNumber)
	if err != nil {
		return nil, err
	}

	created, err := s.api.CreateComment(ctx, owner, name, issueNumber, body)
	if err != nil {
		return nil, fmt.Errorf("create comment on #%d: %w", issueNumber, err)
	}
	created.IssueID = issue.ID
	created.LastAccessedAt = s.now().Unix()
	if err := s.store.UpsertComment(ctx, created); err != nil {
		return nil, err
	}
	if err := s.store.RecountComments(ctx, issue.ID); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateComment edits a comment remotely and in the cache.
func (s *Syncer) UpdateComment(ctx context.Context, owner, name string, commentID int64, body string) error {
	if err := s.api.UpdateComment(ctx, owner, name, commentID, body); err != nil {
		return fmt.Errorf("update comment %d: %w", commentID, err)
	}
	return s.store.UpdateCommentBody(ctx, commentID, body)
}

// DeleteComment deletes a comment remotely and in the cache.
func (s *Syncer) DeleteComment(ctx context.Context, owner, name string, commentID int64) error {
	if err := s.api.DeleteComment(ctx, owner, name, commentID); err != nil {
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	return s.store.DeleteComment(ctx, commentID)
}

// SetIssueState opens or closes an issue and updates the cached row.
func (s *Syncer) SetIssueState(ctx context.Context, owner, name string, number int, state string) error {
	if err := s.api.SetIssueState(ctx, owner, name, number, state); err != nil {
		return fmt.Errorf("set state of #%d: %w", number, err)
	}
	return s.patchIssue(ctx, owner, name, number, func(issue *model.Issue) {
		issue.State = state
	})
}

// SetLabels replaces an issue's labels remotely and in the cache.
func (s *Syncer) SetLabels(ctx context.Context, owner, name string, number int, labels []string) error {
	if err := s.api.SetLabels(ctx, owner, name, number, labels); err != nil {
		return fmt.Errorf("set labels on #%d: %w", number, err)
	}
	return s.patchIssue(ctx, owner, name, number, func(issue *model.Issue) {
		issue.Labels = labels
	})
}

// SetAssignees replaces an issue's assignees remotely and in the cache.
func (s *Syncer) SetAssignees(ctx context.Context, owner, name string, number int, assignees []string) error {
	if err := s.api.SetAssignees(ctx, owner, name, number, assignees); err != nil {
		return fmt.Errorf("set assignees on #%d: %w", number, err)
	}
	return s.patchIssue(ctx, owner, name, number, func(issue *model.Issue) {
		issue.Assignees = assignees
	})
}

// SetThreadResolved resolves or unresolves a review thread.
func (s *Syncer) SetThreadResolved(ctx context.Context, threadID string, resolved bool) error {
	if err := s.api.SetThreadResolved(ctx, threadID, resolved); err != nil {
		return fmt.Errorf("set thread resolution: %w", err)
	}
	return nil
}

// MergePullRequest merges a pull request and marks the cached row merged.
func (s *Syncer) MergePullRequest(ctx context.Context, owner, name string, number int, method string) error {
	if err := s.api.Merge(ctx, owner, name, number, method); err != nil {
		return fmt.Errorf("merge #%d: %w", number, err)
	}
	return s.patchIssue(ctx, owner, name, number, func(issue *model.Issue) {
		issue.State = model.StateMerged
	})
}

func (s *Syncer) cachedIssue(ctx context.Context, owner, name string, number int) (*model.Issue, error) {
	repo, err := s.store.GetRepoBySlug(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %s/%s has never been synced", owner, name)
	}
	issue, err := s.store.GetIssueByNumber(ctx, repo.ID, number)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, fmt.Errorf("issue #%d not cached for %s/%s", number, owner, name)
	}
	return issue, nil
}

func (s *Syncer) patchIssue(ctx context.Context, owner, name string, number int, apply func(*model.Issue)) error {
	issue, err := s.cachedIssue(ctx, owner, name, number)
	if err != nil {
		// The remote write already landed; a missing cached row just means
		// the next sync picks the change up.
		s.logger.Debug("skipping cache patch", "issue", number, "error", err)
		return nil
	}
	apply(issue)
	return s.store.UpsertIssue(ctx, issue)
}
