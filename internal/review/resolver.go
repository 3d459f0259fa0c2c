// internal/review/resolver.go

// Package review turns raw review-comment and review-thread API shapes into
// anchored, renderable comment records.
package review

import (
	"github-issue-mirror/internal/model"
)

type anchor struct {
	line int
	side string
	path string
}

// Resolve produces one ReviewComment per raw input comment with a
// best-effort line anchor.
//
// Remote APIs null out `line` on comments whose diff context was invalidated
// by a later force-push, but the comment is still meaningful pinned to
// whichever line its thread originally anchored; walking the reply chain
// back to the parent recovers that anchor. Comments that cannot be anchored
// at all are still emitted, flagged for rendering as orphaned notes rather
// than dropped.
//
// threads may be nil or partial: a comment absent from it keeps an empty
// thread id and resolved=false.
func Resolve(raw []model.RawReviewComment, threads map[int64]model.ThreadInfo) []model.ReviewComment {
	anchors := make(map[int64]anchor, len(raw))
	for _, rc := range raw {
		line := rc.Line
		if line == nil {
			line = rc.OriginalLine
		}
		if line == nil {
			continue
		}
		anchors[rc.ID] = anchor{line: *line, side: normalizeSide(rc.Side), path: rc.Path}
	}

	out := make([]model.ReviewComment, 0, len(raw))
	for _, rc := range raw {
		resolved := model.ReviewComment{
			ID:        rc.ID,
			Path:      rc.Path,
			Side:      model.SideRight,
			Body:      rc.Body,
			Author:    rc.Author,
			CreatedAt: rc.CreatedAt,
		}

		a, ok := anchors[rc.ID]
		if !ok && rc.InReplyTo != nil {
			a, ok = anchors[*rc.InReplyTo]
		}
		if ok {
			resolved.Anchored = true
			resolved.Line = a.line
			resolved.Side = a.side
			resolved.Path = a.path
		}

		if info, ok := threads[rc.ID]; ok {
			resolved.ThreadID = info.ThreadID
			resolved.Resolved = info.Resolved
		}

		out = append(out, resolved)
	}
	return out
}

func normalizeSide(side string) string {
	switch side {
	case "LEFT", "left":
		return model.SideLeft
	case "RIGHT", "right", "":
		return model.SideRight
	default:
		return model.SideRight
	}
}
