package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
)

// SessionStore hands out the key-value storage of each session.
type SessionStore interface {
	Scope(sessionID string) cart.Storage
}

// OpenSession loads the cart of a session.
func OpenSession(ctx context.Context, store SessionStore, id string, opts cart.Options) (Session, error) {
	state := store.Scope(id)
	if opts.Logger == nil {
		opts.Logger = zctx.From(ctx).With(zap.String("session_id", id))
	}
	c, err := cart.Load(ctx, state, opts)
	if err != nil {
		return Session{}, errors.Wrap(err, "load cart")
	}
	return Session{ID: id, Cart: c, State: state}, nil
}

// Watcher polls charges in the background and settles their sessions, so a
// paid cart is cleaned even when the buyer stops polling.
type Watcher struct {
	svc     *Service
	store   SessionStore
	opts    cart.Options
	timeout time.Duration

	base context.Context
	wg   sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

// NewWatcher creates a Watcher whose goroutines stop when ctx is done or
// after timeout.
func NewWatcher(ctx context.Context, svc *Service, store SessionStore, opts cart.Options, timeout time.Duration) *Watcher {
	return &Watcher{
		svc:     svc,
		store:   store,
		opts:    opts,
		timeout: timeout,
		base:    ctx,
		active:  make(map[string]struct{}),
	}
}

// Watch starts polling pixID for the session unless it is already watched.
func (w *Watcher) Watch(sessionID, pixID string) {
	w.mu.Lock()
	if _, ok := w.active[pixID]; ok {
		w.mu.Unlock()
		return
	}
	w.active[pixID] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, pixID)
			w.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(w.base, w.timeout)
		defer cancel()
		ctx = zctx.With(ctx, zap.String("session_id", sessionID), zap.String("pix_id", pixID))
		lg := zctx.From(ctx)

		sess, err := OpenSession(ctx, w.store, sessionID, w.opts)
		if err != nil {
			lg.Error("Open session for watch", zap.Error(err))
			return
		}
		st, err := w.svc.Watch(ctx, sess, pixID)
		if err != nil {
			lg.Info("Stopped watching charge", zap.Error(err))
			return
		}
		lg.Info("Charge settled", zap.String("status", string(st)))
	}()
}

// Wait blocks until every watch returned.
func (w *Watcher) Wait() {
	w.wg.Wait()
}
