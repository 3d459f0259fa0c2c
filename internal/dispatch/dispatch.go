// internal/dispatch/dispatch.go

// Package dispatch is the concurrency substrate: one coordinator goroutine
// owns all mutable scheduling state, every sync task runs on its own
// goroutine with its own store handle, and results funnel back through a
// single event channel.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github-issue-mirror/internal/model"
	"github-issue-mirror/internal/store"
	"github-issue-mirror/internal/syncer"
)

// TaskKind names one kind of background work.
type TaskKind string

const (
	TaskSyncRepo     TaskKind = "sync_repo"
	TaskSyncComments TaskKind = "sync_comments"
	TaskSyncReviews  TaskKind = "sync_reviews"
	TaskSyncFiles    TaskKind = "sync_files"
	TaskSyncLabels   TaskKind = "sync_labels"
	TaskSyncAccess   TaskKind = "sync_access"

	TaskCreateComment TaskKind = "create_comment"
	TaskUpdateComment TaskKind = "update_comment"
	TaskDeleteComment TaskKind = "delete_comment"
	TaskSetState      TaskKind = "set_state"
	TaskSetLabels     TaskKind = "set_labels"
	TaskSetAssignees  TaskKind = "set_assignees"
	TaskResolveThread TaskKind = "resolve_thread"
	TaskMerge         TaskKind = "merge"

	// TaskFocusIssue is not background work: it tells the coordinator which
	// issue the viewer is on, so the comment and review poll tickers know
	// what to refresh. Number 0 clears the focus.
	TaskFocusIssue TaskKind = "focus_issue"
)

// Request is a unit of work submitted to the dispatcher. Fields beyond Kind,
// Owner and Name are read only by the kinds that need them; requests carry
// their inputs by value so the spawned task owns everything it touches.
type Request struct {
	Kind      TaskKind
	Owner     string
	Name      string
	Number    int
	CommentID int64
	Body      string
	State     string
	Labels    []string
	Assignees []string
	ThreadID  string
	Resolved  bool
	Method    string
	IsPR      bool
}

// Event is a task's terminal report. Exactly one event per spawned task,
// success or failure. Payload fields are set per kind; the rest are zero.
type Event struct {
	Kind   TaskKind
	Owner  string
	Name   string
	Number int
	Err    error

	Stats          *model.SyncStats
	ReviewComments []model.ReviewComment
	Files          []model.PullRequestFile
	Labels         []string
	Assignees      []string
	Access         *syncer.RepoAccess
	Comment        *model.Comment
}

// Listener consumes events in coordinator order. Implementations must treat
// every event as possibly stale and apply it idempotently by id; events from
// independent tasks are not globally ordered.
type Listener interface {
	HandleEvent(Event)
}

// RepoRef identifies one mirrored repository.
type RepoRef struct {
	Owner string
	Name  string
}

type taskKey struct {
	kind   TaskKind
	owner  string
	name   string
	number int
}

type taskResult struct {
	key   taskKey
	event Event
}

// Options configures a Dispatcher.
type Options struct {
	CachePath           string
	API                 syncer.RemoteAPI
	Repos               []RepoRef
	CommentTTL          time.Duration
	CommentCap          int
	IssuePollInterval   time.Duration
	CommentPollInterval time.Duration
	ReviewPollInterval  time.Duration
	Listener            Listener
	Logger              *slog.Logger
}

// Dispatcher owns the scheduling state. All fields below the channels are
// touched only from Run's goroutine.
type Dispatcher struct {
	opts     Options
	logger   *slog.Logger
	requests chan Request
	results  chan taskResult

	inflight map[taskKey]bool
	focused  *Request
}

// New creates a new Dispatcher instance.
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		opts:     opts,
		logger:   opts.Logger.With("component", "dispatch"),
		requests: make(chan Request, 64),
		results:  make(chan taskResult, 64),
		inflight: make(map[taskKey]bool),
	}
}

// Submit queues a request for the coordinator. Safe from any goroutine.
func (d *Dispatcher) Submit(req Request) {
	d.requests <- req
}

// Run is the coordinator loop. It blocks until ctx is cancelled, waiting
// only on its channels; all store and network work happens on task
// goroutines.
func (d *Dispatcher) Run(ctx context.Context) {
	issueTick := time.NewTicker(d.opts.IssuePollInterval)
	commentTick := time.NewTicker(d.opts.CommentPollInterval)
	reviewTick := time.NewTicker(d.opts.ReviewPollInterval)
	defer issueTick.Stop()
	defer commentTick.Stop()
	defer reviewTick.Stop()

	d.syncAllRepos(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			d.handle(ctx, req)
		case res := <-d.results:
			delete(d.inflight, res.key)
			if d.opts.Listener != nil {
				d.opts.Listener.HandleEvent(res.event)
			}
		case <-issueTick.C:
			d.syncAllRepos(ctx)
		case <-commentTick.C:
			if f := d.focused; f != nil {
				d.handle(ctx, Request{Kind: TaskSyncComments, Owner: f.Owner, Name: f.Name, Number: f.Number})
			}
		case <-reviewTick.C:
			if f := d.focused; f != nil && f.IsPR {
				d.handle(ctx, Request{Kind: TaskSyncReviews, Owner: f.Owner, Name: f.Name, Number: f.Number})
			}
		}
	}
}

func (d *Dispatcher) syncAllRepos(ctx context.Context) {
	for _, r := range d.opts.Repos {
		d.handle(ctx, Request{Kind: TaskSyncRepo, Owner: r.Owner, Name: r.Name})
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) {
	if req.Kind == TaskFocusIssue {
		if req.Number == 0 {
			d.focused = nil
		} else {
			r := req
			d.focused = &r
		}
		return
	}

	key := taskKey{kind: req.Kind, owner: req.Owner, name: req.Name, number: req.Number}
	if coalescable(req.Kind) {
		if d.inflight[key] {
			d.logger.Debug("suppressing duplicate in-flight request",
				"kind", req.Kind, "repo", req.Owner+"/"+req.Name, "number", req.Number)
			return
		}
	}
	d.inflight[key] = true
	go d.runTask(ctx, key, req)
}

// coalescable reports whether a duplicate in-flight request of this kind is
// a no-op. Outgoing writes are never coalesced: two comment posts are two
// comments.
func coalescable(kind TaskKind) bool {
	switch kind {
	case TaskSyncRepo, TaskSyncComments, TaskSyncReviews, TaskSyncFiles, TaskSyncLabels, TaskSyncAccess:
		return true
	}
	return false
}

// runTask executes one request on its own goroutine with its own store
// handle. It always sends exactly one result; the coordinator clears the
// in-flight flag only on receipt.
func (d *Dispatcher) runTask(ctx context.Context, key taskKey, req Request) {
	event := Event{Kind: req.Kind, Owner: req.Owner, Name: req.Name, Number: req.Number}

	st, err := store.Open(d.opts.CachePath)
	if err != nil {
		event.Err = err
		d.deliver(ctx, key, event)
		return
	}
	defer st.Close()

	s := syncer.New(st, d.opts.API, d.opts.CommentTTL, d.opts.CommentCap, d.logger)

	switch req.Kind {
	case TaskSyncRepo:
		event.Stats, event.Err = s.SyncRepository(ctx, req.Owner, req.Name)
	case TaskSyncComments:
		event.Err = s.SyncComments(ctx, req.Owner, req.Name, req.Number)
	case TaskSyncReviews:
		event.ReviewComments, event.Err = s.SyncReviewComments(ctx, req.Owner, req.Name, req.Number)
	case TaskSyncFiles:
		event.Files, event.Err = s.SyncFiles(ctx, req.Owner, req.Name, req.Number)
	case TaskSyncLabels:
		event.Labels, event.Assignees, event.Err = s.SyncLabelsAndAssignees(ctx, req.Owner, req.Name)
	case TaskSyncAccess:
		access := s.SyncAccess(ctx, req.Owner, req.Name)
		event.Access = &access
	case TaskCreateComment:
		event.Comment, event.Err = s.CreateComment(ctx, req.Owner, req.Name, req.Number, req.Body)
	case TaskUpdateComment:
		event.Err = s.UpdateComment(ctx, req.Owner, req.Name, req.CommentID, req.Body)
	case TaskDeleteComment:
		event.Err = s.DeleteComment(ctx, req.Owner, req.Name, req.CommentID)
	case TaskSetState:
		event.Err = s.SetIssueState(ctx, req.Owner, req.Name, req.Number, req.State)
	case TaskSetLabels:
		event.Err = s.SetLabels(ctx, req.Owner, req.Name, req.Number, req.Labels)
	case TaskSetAssignees:
		event.Err = s.SetAssignees(ctx, req.Owner, req.Name, req.Number, req.Assignees)
	case TaskResolveThread:
		event.Err = s.SetThreadResolved(ctx, req.ThreadID, req.Resolved)
	case TaskMerge:
		event.Err = s.MergePullRequest(ctx, req.Owner, req.Name, req.Number, req.Method)
	}

	if event.Err != nil {
		d.logger.Warn("task failed", "kind", req.Kind,
			"repo", req.Owner+"/"+req.Name, "number", req.Number, "error", event.Err)
	}
	d.deliver(ctx, key, event)
}

func (d *Dispatcher) deliver(ctx context.Context, key taskKey, event Event) {
	select {
	case d.results <- taskResult{key: key, event: event}:
	case <-ctx.Done():
	}
}
