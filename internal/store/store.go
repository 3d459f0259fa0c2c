// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github-issue-mirror/internal/model"
)

// Store is a handle to the file-backed cache. Handles are cheap; every
// background task opens its own and relies on the database's WAL-mode write
// serialization instead of in-process locking.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite supports a single writer; one connection per handle keeps
	// "database is locked" errors behind busy_timeout instead of surfacing
	// them through the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS repos (
	id INTEGER PRIMARY KEY,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT '',
	etag TEXT NOT NULL DEFAULT '',
	UNIQUE(owner, name)
);

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY,
	repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	state TEXT NOT NULL DEFAULT 'open',
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	labels TEXT NOT NULL DEFAULT '',
	assignees TEXT NOT NULL DEFAULT '',
	comments_count INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL DEFAULT '',
	is_pr INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY,
	issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	author TEXT NOT NULL DEFAULT '',
	author_type TEXT,
	body TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	last_accessed_at INTEGER
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	issue_id UNINDEXED,
	comment_id UNINDEXED,
	title,
	body,
	author,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS local_repos (
	path TEXT NOT NULL,
	remote_name TEXT NOT NULL,
	owner TEXT NOT NULL,
	repo TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	last_seen TEXT NOT NULL DEFAULT '',
	last_scanned TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(path, remote_name)
);

CREATE INDEX IF NOT EXISTS idx_issues_repo_number ON issues(repo_id, number DESC);
CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id, created_at);
CREATE INDEX IF NOT EXISTS idx_comments_accessed ON comments(last_accessed_at);
`

// migrate creates the schema and applies additive upgrades. Column adds are
// retried on every open and duplicate-column errors ignored, so an older
// cache file upgrades in place without version bookkeeping.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	additive := []string{
		`ALTER TABLE comments ADD COLUMN author_type TEXT`,
		`ALTER TABLE issues ADD COLUMN assignees TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE issues ADD COLUMN author TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range additive {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if !isDuplicateColumnErr(err) {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// joinSet persists an order-insensitive string set as comma-joined text.
func joinSet(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func splitSet(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Repos ---

// UpsertRepo inserts or updates a repository by id. On conflict the cursor
// pair is replaced only when the incoming value is non-empty, so a
// metadata-only fetch cannot wipe a previously recorded sync cursor.
func (s *Store) UpsertRepo(ctx context.Context, repo *model.Repo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (id, owner, name, updated_at, etag)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			name = excluded.name,
			updated_at = CASE WHEN excluded.updated_at != '' THEN excluded.updated_at ELSE repos.updated_at END,
			etag = CASE WHEN excluded.etag != '' THEN excluded.etag ELSE repos.etag END
	`, repo.ID, repo.Owner, repo.Name, formatTime(repo.UpdatedAt), repo.ETag)
	if err != nil {
		return fmt.Errorf("upsert repo %s/%s: %w", repo.Owner, repo.Name, err)
	}
	return nil
}

// UpdateRepoCursor overwrites the repository's sync cursor. Callers invoke
// it only after pagination reached natural exhaustion.
func (s *Store) UpdateRepoCursor(ctx context.Context, repoID int64, updatedAt time.Time, etag string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repos SET updated_at = ?, etag = ? WHERE id = ?`,
		formatTime(updatedAt), etag, repoID)
	if err != nil {
		return fmt.Errorf("update repo cursor: %w", err)
	}
	return nil
}

// GetRepoBySlug returns the cached repository row, or nil when the
// repository was never synced. Absence is not an error.
func (s *Store) GetRepoBySlug(ctx context.Context, owner, name string) (*model.Repo, error) {
	var repo model.Repo
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, name, updated_at, etag FROM repos WHERE owner = ? AND name = ?`,
		owner, name).Scan(&repo.ID, &repo.Owner, &repo.Name, &updatedAt, &repo.ETag)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repo %s/%s: %w", owner, name, err)
	}
	repo.UpdatedAt = parseTime(updatedAt)
	return &repo, nil
}

// --- Issues ---

// UpsertIssue inserts or updates an issue by id with a full column replace,
// and swaps the issue's full-text shadow row in the same call.
func (s *Store) UpsertIssue(ctx context.Context, issue *model.Issue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert issue: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (id, repo_id, number, state, title, body, author, labels, assignees, comments_count, updated_at, is_pr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_id = excluded.repo_id,
			number = excluded.number,
			state = excluded.state,
			title = excluded.title,
			body = excluded.body,
			author = excluded.author,
			labels = excluded.labels,
			assignees = excluded.assignees,
			updated_at = excluded.updated_at,
			is_pr = excluded.is_pr
	`, issue.ID, issue.RepoID, issue.Number, issue.State, issue.Title, issue.Body,
		issue.Author, joinSet(issue.Labels), joinSet(issue.Assignees),
		issue.CommentsCount, formatTime(issue.UpdatedAt), boolToInt(issue.IsPullRequest))
	if err != nil {
		return fmt.Errorf("upsert issue #%d: %w", issue.Number, err)
	}

	// Shadow row maintenance is delete-then-insert, never an in-place patch.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_content WHERE issue_id = ? AND comment_id IS NULL`, issue.ID); err != nil {
		return fmt.Errorf("delete issue shadow row: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_content (issue_id, comment_id, title, body, author) VALUES (?, NULL, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Body, issue.Author); err != nil {
		return fmt.Errorf("insert issue shadow row: %w", err)
	}

	return tx.Commit()
}

// ListIssues returns a repository's cached issues ordered by number
// descending. The ordering is a stable list order for keyboard navigation,
// not a recently-active view.
func (s *Store) ListIssues(ctx context.Context, repoID int64) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, number, state, title, body, author, labels, assignees, comments_count, updated_at, is_pr
		FROM issues WHERE repo_id = ? ORDER BY number DESC
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()
	return scanIssues(rows)
}

// GetIssue returns the issue by id, or nil when not cached.
func (s *Store) GetIssue(ctx context.Context, id int64) (*model.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, number, state, title, body, author, labels, assignees, comments_count, updated_at, is_pr
		FROM issues WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %d: %w", id, err)
	}
	defer rows.Close()
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &issues[0], nil
}

// GetIssueByNumber returns the repository's issue with the given number, or
// nil when not cached.
func (s *Store) GetIssueByNumber(ctx context.Context, repoID int64, number int) (*model.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, number, state, title, body, author, labels, assignees, comments_count, updated_at, is_pr
		FROM issues WHERE repo_id = ? AND number = ?
	`, repoID, number)
	if err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	defer rows.Close()
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &issues[0], nil
}

func scanIssues(rows *sql.Rows) ([]model.Issue, error) {
	var issues []model.Issue
	for rows.Next() {
		var issue model.Issue
		var labels, assignees, updatedAt string
		var isPR int
		if err := rows.Scan(&issue.ID, &issue.RepoID, &issue.Number, &issue.State,
			&issue.Title, &issue.Body, &issue.Author, &labels, &assignees,
			&issue.CommentsCount, &updatedAt, &isPR); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.Labels = splitSet(labels)
		issue.Assignees = splitSet(assignees)
		issue.UpdatedAt = parseTime(updatedAt)
		issue.IsPullRequest = isPR != 0
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// --- Comments ---

// UpsertComment inserts or updates a comment and keeps its full-text shadow
// row consistent in the same call.
func (s *Store) UpsertComment(ctx context.Context, c *model.Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert comment: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comments (id, issue_id, author, author_type, body, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issue_id = excluded.issue_id,
			author = excluded.author,
			author_type = excluded.author_type,
			body = excluded.body,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at
	`, c.ID, c.IssueID, c.Author, nullString(c.AuthorType), c.Body,
		formatTime(c.CreatedAt), nullInt(c.LastAccessedAt))
	if err != nil {
		return fmt.Errorf("upsert comment %d: %w", c.ID, err)
	}

	if err := replaceCommentShadow(ctx, tx, c.ID, c.IssueID, c.Body, c.Author); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateCommentBody replaces a comment's body and its shadow row.
func (s *Store) UpdateCommentBody(ctx context.Context, id int64, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update comment body: %w", err)
	}
	defer tx.Rollback()

	var issueID int64
	var author string
	err = tx.QueryRowContext(ctx,
		`SELECT issue_id, author FROM comments WHERE id = ?`, id).Scan(&issueID, &author)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update comment body: comment %d not cached", id)
	}
	if err != nil {
		return fmt.Errorf("update comment body: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE comments SET body = ? WHERE id = ?`, body, id); err != nil {
		return fmt.Errorf("update comment body: %w", err)
	}
	if err := replaceCommentShadow(ctx, tx, id, issueID, body, author); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteComment removes a comment with its shadow row and recomputes the
// owning issue's comments_count from the cache.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	defer tx.Rollback()

	var issueID int64
	err = tx.QueryRowContext(ctx, `SELECT issue_id FROM comments WHERE id = ?`, id).Scan(&issueID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE comment_id = ?`, id); err != nil {
		return fmt.Errorf("delete comment shadow row: %w", err)
	}
	// Recomputed, not decremented: racing deletes self-correct.
	if err := recountIssueComments(ctx, tx, issueID); err != nil {
		return err
	}
	return tx.Commit()
}

// CommentsForIssue returns an issue's comments in chronological thread
// order. Comments without a created_at sort first in insertion order.
func (s *Store) CommentsForIssue(ctx context.Context, issueID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, author_type, body, created_at, last_accessed_at
		FROM comments WHERE issue_id = ? ORDER BY created_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("comments for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var authorType sql.NullString
		var createdAt string
		var accessed sql.NullInt64
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &authorType, &c.Body, &createdAt, &accessed); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.AuthorType = authorType.String
		c.CreatedAt = parseTime(createdAt)
		c.LastAccessedAt = accessed.Int64
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// TouchComments stamps last_accessed_at on every comment of the issue,
// protecting an actively viewed thread from TTL eviction.
func (s *Store) TouchComments(ctx context.Context, issueID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE comments SET last_accessed_at = ? WHERE issue_id = ?`,
		now.Unix(), issueID)
	if err != nil {
		return fmt.Errorf("touch comments for issue %d: %w", issueID, err)
	}
	return nil
}

// RecountComments recomputes and persists the issue's comments_count from
// the rows currently cached.
func (s *Store) RecountComments(ctx context.Context, issueID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recount comments: %w", err)
	}
	defer tx.Rollback()
	if err := recountIssueComments(ctx, tx, issueID); err != nil {
		return err
	}
	return tx.Commit()
}

func recountIssueComments(ctx context.Context, tx *sql.Tx, issueID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE issues SET comments_count = (SELECT COUNT(*) FROM comments WHERE issue_id = ?)
		WHERE id = ?
	`, issueID, issueID)
	if err != nil {
		return fmt.Errorf("recount comments for issue %d: %w", issueID, err)
	}
	return nil
}

func replaceCommentShadow(ctx context.Context, tx *sql.Tx, commentID, issueID int64, body, author string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE comment_id = ?`, commentID); err != nil {
		return fmt.Errorf("delete comment shadow row: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_content (issue_id, comment_id, title, body, author) VALUES (?, ?, '', ?, ?)`,
		issueID, commentID, body, author); err != nil {
		return fmt.Errorf("insert comment shadow row: %w", err)
	}
	return nil
}

// EvictComments enforces comment retention: first every comment whose
// last_accessed_at is older than now-ttl is removed, then, if the remaining
// total still exceeds maxCount, the oldest-by-access rows (never-stamped
// rows counting as oldest) are trimmed until at the cap. Returns the number
// of evicted comments.
func (s *Store) EvictComments(ctx context.Context, ttl time.Duration, maxCount int, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("evict comments: %w", err)
	}
	defer tx.Rollback()

	cutoff := now.Add(-ttl).Unix()
	expired, err := collectCommentIDs(ctx, tx,
		`SELECT id, issue_id FROM comments WHERE last_accessed_at IS NOT NULL AND last_accessed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	if err := deleteComments(ctx, tx, expired); err != nil {
		return 0, err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("evict comments: %w", err)
	}

	var trimmed map[int64]int64
	if remaining > maxCount {
		trimmed, err = collectCommentIDs(ctx, tx, `
			SELECT id, issue_id FROM comments
			ORDER BY last_accessed_at ASC NULLS FIRST, id ASC
			LIMIT ?`, remaining-maxCount)
		if err != nil {
			return 0, err
		}
		if err := deleteComments(ctx, tx, trimmed); err != nil {
			return 0, err
		}
	}

	touched := make(map[int64]struct{})
	for _, issueID := range expired {
		touched[issueID] = struct{}{}
	}
	for _, issueID := range trimmed {
		touched[issueID] = struct{}{}
	}
	for issueID := range touched {
		if err := recountIssueComments(ctx, tx, issueID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("evict comments: %w", err)
	}
	return len(expired) + len(trimmed), nil
}

func collectCommentIDs(ctx context.Context, tx *sql.Tx, query string, arg any) (map[int64]int64, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("evict comments: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]int64)
	for rows.Next() {
		var id, issueID int64
		if err := rows.Scan(&id, &issueID); err != nil {
			return nil, fmt.Errorf("evict comments: %w", err)
		}
		ids[id] = issueID
	}
	return ids, rows.Err()
}

func deleteComments(ctx context.Context, tx *sql.Tx, ids map[int64]int64) error {
	for id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("evict comment %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE comment_id = ?`, id); err != nil {
			return fmt.Errorf("evict comment shadow row %d: %w", id, err)
		}
	}
	return nil
}

// --- Full-text search ---

// SearchHit is one full-text match. CommentID is zero when the hit is the
// issue row itself.
type SearchHit struct {
	IssueID   int64
	CommentID int64
}

// Search runs a full-text query over the shadow table, best matches first.
func (s *Store) Search(ctx context.Context, query string) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, COALESCE(comment_id, 0) FROM fts_content
		WHERE fts_content MATCH ? ORDER BY rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.IssueID, &h.CommentID); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// --- Local repos ---

// UpsertLocalRepo records or refreshes a discovered clone's remote.
func (s *Store) UpsertLocalRepo(ctx context.Context, lr *model.LocalRepo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_repos (path, remote_name, owner, repo, url, last_seen, last_scanned)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, remote_name) DO UPDATE SET
			owner = excluded.owner,
			repo = excluded.repo,
			url = excluded.url,
			last_seen = excluded.last_seen,
			last_scanned = excluded.last_scanned
	`, lr.Path, lr.RemoteName, lr.Owner, lr.Repo, lr.URL,
		formatTime(lr.LastSeen), formatTime(lr.LastScanned))
	if err != nil {
		return fmt.Errorf("upsert local repo %s: %w", lr.Path, err)
	}
	return nil
}

// ListLocalRepos returns every remembered clone/remote pair.
func (s *Store) ListLocalRepos(ctx context.Context) ([]model.LocalRepo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, remote_name, owner, repo, url, last_seen, last_scanned
		FROM local_repos ORDER BY path, remote_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list local repos: %w", err)
	}
	defer rows.Close()

	var repos []model.LocalRepo
	for rows.Next() {
		var lr model.LocalRepo
		var lastSeen, lastScanned string
		if err := rows.Scan(&lr.Path, &lr.RemoteName, &lr.Owner, &lr.Repo, &lr.URL, &lastSeen, &lastScanned); err != nil {
			return nil, fmt.Errorf("scan local repo: %w", err)
		}
		lr.LastSeen = parseTime(lastSeen)
		lr.LastScanned = parseTime(lastScanned)
		repos = append(repos, lr)
	}
	return repos, rows.Err()
}

// Reset forgets the entire cache. Issue and comment rows cascade from their
// repositories; local repo rows are kept (they describe the filesystem, not
// the remote).
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM repos`,
		`DELETE FROM fts_content`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset cache: %w", err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
