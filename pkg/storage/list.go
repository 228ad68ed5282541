package storage

import (
	"sort"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/transport"
)

// Matches reports whether a submission passes the filters in opts.
func Matches(sub *api.Submission, opts transport.ListOptions) bool {
	if opts.FormID != "" && sub.FormID != opts.FormID {
		return false
	}
	if opts.Outcome != "" && sub.Outcome != opts.Outcome {
		return false
	}
	return true
}

// Paginate sorts already filtered submissions by finish time (session ID
// breaks ties), applies the After cursor and the limit, and builds the
// page. Adapters that cannot push ordering into their backend use it.
func Paginate(subs []*api.Submission, opts transport.ListOptions) *api.SubmissionList {
	asc := opts.Order == "asc"
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if !a.FinishedAt.Equal(b.FinishedAt) {
			if asc {
				return a.FinishedAt.Before(b.FinishedAt)
			}
			return a.FinishedAt.After(b.FinishedAt)
		}
		if asc {
			return a.SessionID < b.SessionID
		}
		return a.SessionID > b.SessionID
	})

	if opts.After != "" {
		idx := -1
		for i, s := range subs {
			if s.SessionID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			subs = subs[idx+1:]
		} else {
			subs = nil
		}
	}

	limit := opts.EffectiveLimit()
	hasMore := len(subs) > limit
	if hasMore {
		subs = subs[:limit]
	}
	return NewList(subs, hasMore)
}

// NewList builds a page from submissions in their final order.
func NewList(subs []*api.Submission, hasMore bool) *api.SubmissionList {
	list := &api.SubmissionList{
		Object:  "list",
		Data:    make([]api.Submission, 0, len(subs)),
		HasMore: hasMore,
	}
	for _, s := range subs {
		list.Data = append(list.Data, *s)
	}
	if len(subs) > 0 {
		list.FirstID = subs[0].SessionID
		list.LastID = subs[len(subs)-1].SessionID
	}
	return list
}
