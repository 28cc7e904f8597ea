package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/c-pro/geche"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultDirectoryTTL bounds how long a resolved user is trusted.
	DefaultDirectoryTTL = 10 * time.Minute
	// DefaultMissTTL is how long an unresolved id is not retried.
	DefaultMissTTL = 30 * time.Second

	refreshTimeout = 10 * time.Second
)

// UserLister is the REST call the directory refreshes from.
type UserLister interface {
	Users(ctx context.Context) ([]models.User, error)
}

// Directory caches user records by id. Entries come from event payloads
// (Remember) and from full refreshes against the server (Fill). Resolve
// never blocks on the network.
type Directory struct {
	ctx   context.Context
	users UserLister
	cache geche.Geche[models.UserID, models.User]
	// misses holds ids a refresh did not resolve.
	misses geche.Geche[models.UserID, struct{}]
	log    *zap.Logger

	refreshing atomic.Bool
	wg         gosync.WaitGroup
}

// NewDirectory returns a Directory whose cleanup goroutines and background
// refreshes live until ctx is done. ttl <= 0 selects DefaultDirectoryTTL.
func NewDirectory(ctx context.Context, users UserLister, ttl time.Duration, log *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &Directory{
		ctx:    ctx,
		users:  users,
		cache:  geche.NewMapTTLCache[models.UserID, models.User](ctx, ttl, time.Minute),
		misses: geche.NewMapTTLCache[models.UserID, struct{}](ctx, DefaultMissTTL, 10*time.Second),
		log:    logging.OrNop(log).Named("directory"),
	}
}

// Remember stores u. Records without an id are ignored.
func (d *Directory) Remember(u models.User) {
	if u.ID == 0 {
		return
	}
	d.cache.Set(u.ID, u)
	_ = d.misses.Del(u.ID)
}

// Fill replaces the cached records with the server's user list.
func (d *Directory) Fill(ctx context.Context) error {
	if d.users == nil {
		return nil
	}
	users, err := d.users.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		d.Remember(u)
	}
	d.log.Debug("directory filled", zap.Int("users", len(users)))
	return nil
}

// Resolve returns the cached record for id. On a miss it reports false at
// once and starts a background refresh, unless id missed recently or a
// refresh is already running.
func (d *Directory) Resolve(id models.UserID) (models.User, bool) {
	if id == 0 {
		return models.User{}, false
	}
	if u, ok := d.cached(id); ok {
		return u, true
	}
	if _, err := d.misses.Get(id); err == nil {
		return models.User{}, false
	}
	d.misses.Set(id, struct{}{})
	d.refresh()
	return models.User{}, false
}

// Wait blocks until background refreshes have returned.
func (d *Directory) Wait() { d.wg.Wait() }

func (d *Directory) refresh() {
	if d.users == nil || d.ctx.Err() != nil || !d.refreshing.CompareAndSwap(false, true) {
		return
	}
	d.wg.Go(func() {
		defer d.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(d.ctx, refreshTimeout)
		defer cancel()
		if err := d.Fill(ctx); err != nil {
			d.log.Warn("directory refresh failed", zap.Error(err))
		}
	})
}

func (d *Directory) cached(id models.UserID) (models.User, bool) {
	u, err := d.cache.Get(id)
	if err != nil {
		if !errors.Is(err, geche.ErrNotFound) {
			d.log.Warn("directory read failed", zap.Error(err))
		}
		return models.User{}, false
	}
	return u, true
}
