package engine

import (
	"context"
	"slices"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

type actionLog struct {
	e *Engine
}

var _ perms.ActionLogger = (*actionLog)(nil)

// Submit stores a and announces it on the event bus as a local log broadcast.
func (l *actionLog) Submit(a perms.Action) *async.Future[struct{}] {
	return run(l.e, "submit action", func(ctx context.Context) (struct{}, error) {
		if a.Timestamp.IsZero() {
			a.Timestamp = l.e.now()
		}
		if err := l.e.repo.InsertAction(ctx, a); err != nil {
			return struct{}{}, err
		}
		l.e.bus.Publish(perms.LogBroadcast{Entry: a, Origin: perms.LogLocal})
		return struct{}{}, nil
	})
}

// QueryActions returns matching actions, oldest first.
func (l *actionLog) QueryActions(f perms.ActionFilter) *async.Future[[]perms.Action] {
	return run(l.e, "query actions", func(ctx context.Context) ([]perms.Action, error) {
		return l.matching(ctx, f)
	})
}

// QueryActionsPage returns one page of matching actions, newest first.
// Pages are numbered from 1.
func (l *actionLog) QueryActionsPage(f perms.ActionFilter, pageSize, pageNumber int) *async.Future[perms.ActionPage] {
	return run(l.e, "query action page", func(ctx context.Context) (perms.ActionPage, error) {
		all, err := l.matching(ctx, f)
		if err != nil {
			return perms.ActionPage{}, err
		}
		slices.Reverse(all)

		page := perms.ActionPage{Entries: []perms.Action{}, OverallSize: len(all)}
		if pageSize < 1 || pageNumber < 1 {
			return page, nil
		}
		start := (pageNumber - 1) * pageSize
		if start >= len(all) {
			return page, nil
		}
		end := min(start+pageSize, len(all))
		page.Entries = all[start:end]
		return page, nil
	})
}

func (l *actionLog) matching(ctx context.Context, f perms.ActionFilter) ([]perms.Action, error) {
	all, err := l.e.repo.Actions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]perms.Action, 0, len(all))
	for _, a := range all {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}
