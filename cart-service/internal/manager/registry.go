package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/cart-service/internal/mirror"
	"github.com/fjod/mood_store/cart-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Registry owns the live cart sessions, one per user.
type Registry struct {
	store    repository.Store
	mirror   mirror.Mirror
	notifier Notifier
	log      *slog.Logger
	opts     Options

	mu       sync.Mutex
	sessions map[string]*Manager
	sfg      singleflight.Group // one session start per user

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(store repository.Store, m mirror.Mirror, notifier Notifier, log *slog.Logger, opts Options) *Registry {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:    store,
		mirror:   m,
		notifier: notifier,
		log:      log,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Manager),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Session returns the live session of userID, starting one if needed. A new
// session restores the mirror and then reconciles with the remote store; if
// the store is unreachable the mirrored cart is kept.
func (r *Registry) Session(ctx context.Context, userID string) *Manager {
	if m := r.lookup(userID); m != nil {
		return m
	}

	v, _, _ := r.sfg.Do(userID, func() (interface{}, error) {
		if m := r.lookup(userID); m != nil {
			return m, nil
		}

		m := New(userID, r.store, r.mirror, r.notifier, r.log, r.opts)
		m.restore(r.loadMirror(ctx, userID))
		if err := m.Reconcile(ctx); err != nil {
			r.log.Warn("cart reconcile at session start failed, keeping mirrored cart",
				"user_id", userID, "err", err)
		}

		r.mu.Lock()
		r.sessions[userID] = m
		r.mu.Unlock()

		if r.opts.Follow {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				if err := r.Follow(r.ctx, userID); err != nil {
					r.log.Warn("cart change feed unavailable", "user_id", userID, "err", err)
				}
			}()
		}
		return m, nil
	})
	return v.(*Manager)
}

// Follow reconciles the live session of userID whenever another session
// changes the user's remote cart. It returns when ctx is done or the feed
// closes.
func (r *Registry) Follow(ctx context.Context, userID string) error {
	events, err := r.store.Watch(ctx, userID)
	if err != nil {
		return fmt.Errorf("watch cart %s: %w", userID, err)
	}

	for ev := range events {
		m := r.lookup(userID)
		if m == nil || isOwnWrite(m, ev) {
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, r.opts.SyncTimeout)
		if err := m.Reconcile(rctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("cart reconcile after remote change failed", "user_id", userID, "err", err)
		}
		cancel()
	}
	return nil
}

func isOwnWrite(m *Manager, ev domain.ChangeEvent) bool {
	return ev.Origin != "" && ev.Origin == m.Session()
}

// Clear empties the cart of userID everywhere: the live session, the remote
// rows and the mirror. With a live session the remote delete goes through
// the session queue, so adds made after the clear keep their rows.
func (r *Registry) Clear(ctx context.Context, userID string) error {
	if m := r.lookup(userID); m != nil {
		err := m.clearEverywhere(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrClosed) {
			return fmt.Errorf("delete remote cart %s: %w", userID, err)
		}
	}

	if err := r.store.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("delete remote cart %s: %w", userID, err)
	}
	if r.mirror != nil {
		if err := r.mirror.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete cart mirror %s: %w", userID, err)
		}
	}
	return nil
}

// Close stops followers and every session worker.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range sessions {
		m.Close()
	}
}

func (r *Registry) lookup(userID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

func (r *Registry) loadMirror(ctx context.Context, userID string) []domain.CartLine {
	if r.mirror == nil {
		return []domain.CartLine{}
	}
	lines, err := r.mirror.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, mirror.ErrMirrorMiss) {
			r.log.Warn("cart mirror load failed", "user_id", userID, "err", err)
		}
		return []domain.CartLine{}
	}
	return lines
}
