// internal/gh/client.go

// Package gh implements the remote API collaborator against GitHub's REST
// and GraphQL endpoints.
package gh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github-issue-mirror/internal/apperrors"
	"github-issue-mirror/internal/model"
)

// Client wraps the go-github REST client and a githubv4 GraphQL client.
type Client struct {
	rest     *github.Client
	graphql  *githubv4.Client
	logger   *slog.Logger
	pageSize int
}

// NewClient creates and configures a new Client instance. The provided
// token is used to create an authenticated http.Client shared by both
// endpoints.
func NewClient(token string, pageSize int, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		rest:     github.NewClient(tc),
		graphql:  githubv4.NewClient(tc),
		logger:   logger,
		pageSize: pageSize,
	}
}

// GetRepo fetches repository metadata. The returned row carries empty
// cursors; the store's upsert rule keeps any previously recorded pair.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*model.Repo, error) {
	repo, _, err := c.rest.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, wrapRemote(err)
	}
	return &model.Repo{
		ID:    repo.GetID(),
		Owner: repo.GetOwner().GetLogin(),
		Name:  repo.GetName(),
	}, nil
}

// ListIssuesPage fetches one page of the repository's issues (pull requests
// included), newest-updated first. Pages are 1-based. When etag is supplied
// it is replayed as If-None-Match and a matching validator yields
// apperrors.ErrNotModified.
func (c *Client) ListIssuesPage(ctx context.Context, owner, name string, page int, etag string, since time.Time) (*model.IssuesPage, error) {
	u := fmt.Sprintf("repos/%s/%s/issues?state=all&sort=updated&direction=desc&per_page=%d&page=%d",
		owner, name, c.pageSize, page)
	if !since.IsZero() {
		u += "&since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	req, err := c.rest.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build issues request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	var ghIssues []*github.Issue
	resp, err := c.rest.Do(ctx, req, &ghIssues)
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		return nil, apperrors.ErrNotModified
	}
	if err != nil {
		return nil, wrapRemote(err)
	}

	result := &model.IssuesPage{ETag: resp.Header.Get("ETag")}
	for _, ghIssue := range ghIssues {
		result.Issues = append(result.Issues, convertIssue(ghIssue))
	}
	return result, nil
}

// convertIssue maps a remote issue or pull request to a cache row. A pull
// request whose payload carries a merge timestamp is forced to the merged
// state, which the plain state field never reports.
func convertIssue(ghIssue *github.Issue) model.Issue {
	issue := model.Issue{
		ID:            ghIssue.GetID(),
		Number:        ghIssue.GetNumber(),
		State:         ghIssue.GetState(),
		Title:         ghIssue.GetTitle(),
		Body:          ghIssue.GetBody(),
		Author:        ghIssue.GetUser().GetLogin(),
		CommentsCount: ghIssue.GetComments(),
		UpdatedAt:     ghIssue.GetUpdatedAt().Time,
		IsPullRequest: ghIssue.IsPullRequest(),
	}
	for _, label := range ghIssue.Labels {
		issue.Labels = append(issue.Labels, label.GetName())
	}
	for _, assignee := range ghIssue.Assignees {
		issue.Assignees = append(issue.Assignees, assignee.GetLogin())
	}
	if issue.IsPullRequest && ghIssue.GetPullRequestLinks().MergedAt != nil {
		issue.State = model.StateMerged
	}
	return issue
}

// ListComments fetches all comments of an issue, exhausting pagination
// internally.
func (c *Client) ListComments(ctx context.Context, owner, name string, number int) ([]model.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []model.Comment
	for {
		comments, resp, err := c.rest.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapRemote(err)
		}
		for _, ghComment := range comments {
			all = append(all, model.Comment{
				ID:         ghComment.GetID(),
				Author:     ghComment.GetUser().GetLogin(),
				AuthorType: ghComment.GetUser().GetType(),
				Body:       ghComment.GetBody(),
				CreatedAt:  ghComment.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListPullRequestFiles fetches the changed files of a pull request.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, name string, number int) ([]model.PullRequestFile, error) {
	opts := &github.ListOptions{PerPage: 100}

	var all []model.PullRequestFile
	for {
		files, resp, err := c.rest.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapRemote(err)
		}
		for _, f := range files {
			all = append(all, model.PullRequestFile{
				Path:      f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListReviewComments fetches the flat review comment list of a pull
// request, preserving the raw anchor fields for the resolver.
func (c *Client) ListReviewComments(ctx context.Context, owner, name string, number int) ([]model.RawReviewComment, error) {
	opts := &github.PullRequestListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []model.RawReviewComment
	for {
		comments, resp, err := c.rest.PullRequests.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, wrapRemote(err)
		}
		for _, rc := range comments {
			all = append(all, model.RawReviewComment{
				ID:           rc.GetID(),
				Path:         rc.GetPath(),
				Body:         rc.GetBody(),
				Author:       rc.GetUser().GetLogin(),
				CreatedAt:    rc.GetCreatedAt().Time,
				Line:         rc.Line,
				OriginalLine: rc.OriginalLine,
				Side:         rc.GetSide(),
				InReplyTo:    rc.InReplyTo,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListReviewThreads queries review thread ids and resolution flags over
// GraphQL, keyed by the member comments' database ids.
func (c *Client) ListReviewThreads(ctx context.Context, owner, name string, number int) (map[int64]model.ThreadInfo, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					Nodes []struct {
						ID         githubv4.ID
						IsResolved githubv4.Boolean
						Comments   struct {
							Nodes []struct {
								DatabaseID githubv4.Int
							}
						} `graphql:"comments(first: 100)"`
					}
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage githubv4.Boolean
					}
				} `graphql:"reviewThreads(first: 50, after: $cursor)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"number": githubv4.Int(number),
		"cursor": (*githubv4.String)(nil),
	}

	threads := make(map[int64]model.ThreadInfo)
	for {
		if err := c.graphql.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("query review threads: %w", err)
		}
		for _, node := range query.Repository.PullRequest.ReviewThreads.Nodes {
			info := model.ThreadInfo{
				ThreadID: fmt.Sprintf("%v", node.ID),
				Resolved: bool(node.IsResolved),
			}
			for _, comment := range node.Comments.Nodes {
				threads[int64(comment.DatabaseID)] = info
			}
		}
		if !bool(query.Repository.PullRequest.ReviewThreads.PageInfo.HasNextPage) {
			break
		}
		variables["cursor"] = githubv4.NewString(query.Repository.PullRequest.ReviewThreads.PageInfo.EndCursor)
	}
	return threads, nil
}

// SetThreadResolved resolves or unresolves a review thread.
func (c *Client) SetThreadResolved(ctx context.Context, threadID string, resolved bool) error {
	if resolved {
		var m struct {
			ResolveReviewThread struct {
				Thread struct {
					ID githubv4.ID
				}
			} `graphql:"resolveReviewThread(input: $input)"`
		}
		input := githubv4.ResolveReviewThreadInput{ThreadID: githubv4.ID(threadID)}
		if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
			return fmt.Errorf("resolve review thread: %w", err)
		}
		return nil
	}

	var m struct {
		UnresolveReviewThread struct {
			Thread struct {
				ID githubv4.ID
			}
		} `graphql:"unresolveReviewThread(input: $input)"`
	}
	input := githubv4.UnresolveReviewThreadInput{ThreadID: githubv4.ID(threadID)}
	if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("unresolve review thread: %w", err)
	}
	return nil
}

// CreateComment posts a new comment on an issue.
func (c *Client) CreateComment(ctx context.Context, owner, name string, number int, body string) (*model.Comment, error) {
	created, _, err := c.rest.Issues.CreateComment(ctx, owner, name, number,
		&github.IssueComment{Body: github.String(body)})
	if err != nil {
		return nil, wrapRemote(err)
	}
	return &model.Comment{
		ID:         created.GetID(),
		Author:     created.GetUser().GetLogin(),
		AuthorType: created.GetUser().GetType(),
		Body:       created.GetBody(),
		CreatedAt:  created.GetCreatedAt().Time,
	}, nil
}

// UpdateComment edits an existing comment's body.
func (c *Client) UpdateComment(ctx context.Context, owner, name string, commentID int64, body string) error {
	_, _, err := c.rest.Issues.EditComment(ctx, owner, name, commentID,
		&github.IssueComment{Body: github.String(body)})
	if err != nil {
		return wrapRemote(err)
	}
	return nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, owner, name string, commentID int64) error {
	if _, err := c.rest.Issues.DeleteComment(ctx, owner, name, commentID); err != nil {
		return wrapRemote(err)
	}
	return nil
}

// ListLabels returns the repository's label names.
func (c *Client) ListLabels(ctx context.Context, owner, name string) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}

	var all []string
	for {
		labels, resp, err := c.rest.Issues.ListLabels(ctx, owner, name, opts)
		if err != nil {
			return nil, wrapRemote(err)
		}
		for _, l := range labels {
			all = append(all, l.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListAssignees returns the logins of the repository's available assignees.
func (c *Client) ListAssignees(ctx context.Context, owner, name string) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}

	var all []string
	for {
		users, resp, err := c.rest.Issues.ListAssignees(ctx, owner, name, opts)
		if err != nil {
			return nil, wrapRemote(err)
		}
		for _, u := range users {
			all = append(all, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// SetLabels replaces an issue's labels.
func (c *Client) SetLabels(ctx context.Context, owner, name string, number int, labels []string) error {
	_, _, err := c.rest.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{Labels: &labels})
	if err != nil {
		return wrapRemote(err)
	}
	return nil
}

// SetAssignees replaces an issue's assignees.
func (c *Client) SetAssignees(ctx context.Context, owner, name string, number int, assignees []string) error {
	_, _, err := c.rest.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{Assignees: &assignees})
	if err != nil {
		return wrapRemote(err)
	}
	return nil
}

// SetIssueState opens or closes an issue.
func (c *Client) SetIssueState(ctx context.Context, owner, name string, number int, state string) error {
	_, _, err := c.rest.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{State: github.String(state)})
	if err != nil {
		return wrapRemote(err)
	}
	return nil
}

// ViewerPermission reports the authenticated user's permission level on the
// repository ("admin", "write", "read", "none").
func (c *Client) ViewerPermission(ctx context.Context, owner, name string) (string, error) {
	viewer, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return "", wrapRemote(err)
	}
	level, _, err := c.rest.Repositories.GetPermissionLevel(ctx, owner, name, viewer.GetLogin())
	if err != nil {
		return "", wrapRemote(err)
	}
	return level.GetPermission(), nil
}

// MergeMethods discovers which merge methods the repository allows.
func (c *Client) MergeMethods(ctx context.Context, owner, name string) ([]string, error) {
	repo, _, err := c.rest.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, wrapRemote(err)
	}
	var methods []string
	if repo.GetAllowMergeCommit() {
		methods = append(methods, "merge")
	}
	if repo.GetAllowSquashMerge() {
		methods = append(methods, "squash")
	}
	if repo.GetAllowRebaseMerge() {
		methods = append(methods, "rebase")
	}
	return methods, nil
}

// Merge merges a pull request with the given method.
func (c *Client) Merge(ctx context.Context, owner, name string, number int, method string) error {
	_, _, err := c.rest.PullRequests.Merge(ctx, owner, name, number, "",
		&github.PullRequestOptions{MergeMethod: method})
	if err != nil {
		return wrapRemote(err)
	}
	return nil
}

// wrapRemote converts go-github errors into the RemoteError taxonomy,
// carrying the remote's own message when it was extractable.
func wrapRemote(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return &apperrors.RemoteError{StatusCode: status, Message: ghErr.Message, Err: err}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.RemoteError{StatusCode: http.StatusForbidden, Message: rateErr.Message, Err: err}
	}
	return err
}
