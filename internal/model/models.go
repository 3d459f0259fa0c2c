// internal/model/models.go
package model

import "time"

// Issue states as stored in the cache.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// Review comment sides. GitHub reports LEFT/RIGHT; the cache keeps them
// lowercase.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Repo is a mirrored repository together with its sync cursor. UpdatedAt and
// ETag advance only after an issue pagination that ran to exhaustion.
type Repo struct {
	ID        int64
	Owner     string
	Name      string
	UpdatedAt time.Time
	ETag      string
}

// Issue is a cached issue or pull request. Labels and assignees are
// order-insensitive sets; the store joins them for persistence.
type Issue struct {
	ID            int64
	RepoID        int64
	Number        int
	State         string
	Title         string
	Body          string
	Author        string
	Labels        []string
	Assignees     []string
	CommentsCount int
	UpdatedAt     time.Time
	IsPullRequest bool
}

// Comment is a cached issue comment. LastAccessedAt is epoch seconds and
// drives eviction; zero means "never stamped".
type Comment struct {
	ID             int64
	IssueID        int64
	Author         string
	AuthorType     string
	Body           string
	CreatedAt      time.Time
	LastAccessedAt int64
}

// IssuesPage is one page of the conditional issue listing. ETag is the
// opaque validator returned alongside the page.
type IssuesPage struct {
	Issues []Issue
	ETag   string
}

// RawReviewComment is the review comment shape as the REST endpoint reports
// it, before anchor resolution. Line and OriginalLine are nil when the diff
// context was invalidated by a force-push; InReplyTo is nil on top-level
// comments.
type RawReviewComment struct {
	ID           int64
	Path         string
	Body         string
	Author       string
	CreatedAt    time.Time
	Line         *int
	OriginalLine *int
	Side         string
	InReplyTo    *int64
}

// ThreadInfo is the per-comment thread metadata fetched independently over
// GraphQL.
type ThreadInfo struct {
	ThreadID string
	Resolved bool
}

// ReviewComment is the anchored, renderable record produced by the resolver.
// It is recomputed on every review-comment sync and never persisted verbatim.
type ReviewComment struct {
	ID        int64
	ThreadID  string
	Resolved  bool
	Anchored  bool
	Path      string
	Line      int
	Side      string
	Body      string
	Author    string
	CreatedAt time.Time
}

// PullRequestFile is one changed file of a pull request.
type PullRequestFile struct {
	Path      string
	Status    string
	Additions int
	Deletions int
	Patch     string
}

// LocalRepo records a remembered remote of a filesystem clone. Rows are
// created by the external discovery collaborator and never expire.
type LocalRepo struct {
	Path        string
	RemoteName  string
	Owner       string
	Repo        string
	URL         string
	LastSeen    time.Time
	LastScanned time.Time
}

// SyncStats summarizes one full repository sync.
type SyncStats struct {
	Issues       int
	PullRequests int
	Pages        int
	NotModified  bool
}
