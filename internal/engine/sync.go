package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// Sync reloads every loaded group, track and user from storage,
// bracketed by pre-sync and post-sync events.
func (e *Engine) Sync(ctx context.Context) error {
	e.bus.Publish(perms.PreSync{})
	if err := e.reload(ctx); err != nil {
		return err
	}
	e.bus.Publish(perms.PostSync{})
	return nil
}

func (e *Engine) reload(ctx context.Context) error {
	if _, err := e.groupManager.LoadAllGroups().Await(ctx); err != nil {
		return fmt.Errorf("engine: sync: %w", err)
	}
	if _, err := e.trackManager.LoadAllTracks().Await(ctx); err != nil {
		return fmt.Errorf("engine: sync: %w", err)
	}
	for _, u := range e.userManager.loaded() {
		if _, err := e.userManager.LoadUser(u.UniqueID()).Await(ctx); err != nil {
			return fmt.Errorf("engine: sync user %s: %w", u.UniqueID(), err)
		}
	}
	return nil
}

// NetworkSync handles a sync request from a peer. A nil user requests a full
// sync; otherwise only that user is reloaded, and only if it is loaded here.
func (e *Engine) NetworkSync(ctx context.Context, user *uuid.UUID) error {
	syncID := uuid.New()
	syncType := perms.SyncFull
	if user != nil {
		syncType = perms.SyncUser
	}
	e.bus.Publish(perms.PreNetworkSync{SyncID: syncID, Type: syncType, SpecificUser: user})

	occurred := false
	var err error
	switch {
	case user == nil:
		err = e.Sync(ctx)
		occurred = err == nil
	case e.userManager.IsLoaded(*user):
		_, err = e.userManager.LoadUser(*user).Await(ctx)
		occurred = err == nil
	}

	e.bus.Publish(perms.PostNetworkSync{
		SyncID:       syncID,
		Type:         syncType,
		DidSyncOccur: occurred,
		SpecificUser: user,
	})
	if err != nil {
		e.logger.Warn("network sync failed", "sync_id", syncID, "type", syncType, "error", err)
	}
	return err
}
