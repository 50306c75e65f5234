// Package marker renders photo records as map markers with a thumbnail badge.
package marker

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/geotag/photomap/pkg/core"
)

// Board holds the marker state machine for every tracked record. Each
// marker moves Loading -> Loaded or Loading -> Error on its own.
type Board struct {
	loader Loader
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	markers   map[core.RecordID]*entry
	order     []core.RecordID
	pending   int
	waiters   []chan struct{}
	listeners []func(core.RecordID, core.MarkerPhase)
}

type entry struct {
	route  core.MapRoute
	phase  core.MarkerPhase
	size   image.Point
	cancel context.CancelFunc
}

// NewBoard creates a board. Loads stop when ctx is done or Close is called.
func NewBoard(ctx context.Context, loader Loader, logger *slog.Logger) *Board {
	if loader == nil {
		loader = URILoader{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	bctx, cancel := context.WithCancel(ctx)
	return &Board{
		loader:  loader,
		logger:  logger,
		ctx:     bctx,
		cancel:  cancel,
		markers: make(map[core.RecordID]*entry),
	}
}

// OnChange registers a listener for phase transitions.
func (b *Board) OnChange(fn func(core.RecordID, core.MarkerPhase)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Track adds or updates markers. A changed image URI restarts loading.
func (b *Board) Track(routes ...core.MapRoute) {
	for _, r := range routes {
		b.track(r)
	}
}

// Sync makes routes the complete tracked set.
func (b *Board) Sync(routes []core.MapRoute) {
	keep := make(map[core.RecordID]bool, len(routes))
	for _, r := range routes {
		keep[r.ID] = true
	}

	b.mu.Lock()
	order := b.order[:0]
	for _, id := range b.order {
		if keep[id] {
			order = append(order, id)
			continue
		}
		if e := b.markers[id]; e.cancel != nil {
			e.cancel()
		}
		delete(b.markers, id)
	}
	b.order = order
	b.mu.Unlock()

	b.Track(routes...)
}

func (b *Board) track(r core.MapRoute) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	prev, exists := b.markers[r.ID]
	if exists && prev.route.ImageURI == r.ImageURI {
		prev.route = r
		b.mu.Unlock()
		return
	}
	if exists {
		if prev.cancel != nil {
			prev.cancel()
		}
	} else {
		b.order = append(b.order, r.ID)
	}

	e := &entry{route: r, phase: core.MarkerLoading}
	b.markers[r.ID] = e
	if r.ImageURI == "" {
		e.phase = core.MarkerError
	} else {
		ctx, cancel := context.WithCancel(b.ctx)
		e.cancel = cancel
		b.pending++
		b.wg.Add(1)
		go b.load(ctx, r.ID, e, r.ImageURI)
	}
	listeners := b.listenersLocked()
	phase := e.phase
	b.mu.Unlock()

	for _, l := range listeners {
		l(r.ID, phase)
	}
}

// load fetches uri, captured by track, since e.route may be replaced under b.mu.
func (b *Board) load(ctx context.Context, id core.RecordID, e *entry, uri string) {
	defer b.wg.Done()
	defer b.settled()

	img, err := b.loader.Load(ctx, uri)

	b.mu.Lock()
	// superseded or cancelled loads leave the marker alone
	if ctx.Err() != nil || b.markers[id] != e {
		b.mu.Unlock()
		return
	}
	if err != nil {
		e.phase = core.MarkerError
		if !errors.Is(err, context.Canceled) {
			b.logger.Debug("Marker image failed", "id", id, "error", err)
		}
	} else {
		e.phase = core.MarkerLoaded
		e.size = img.Bounds().Size()
	}
	e.cancel()
	e.cancel = nil
	listeners := b.listenersLocked()
	phase := e.phase
	b.mu.Unlock()

	for _, l := range listeners {
		l(id, phase)
	}
}

// settled runs after a load's listeners so Settle observes them.
func (b *Board) settled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending--
	if b.pending == 0 {
		for _, w := range b.waiters {
			close(w)
		}
		b.waiters = nil
	}
}

func (b *Board) listenersLocked() []func(core.RecordID, core.MarkerPhase) {
	return append([]func(core.RecordID, core.MarkerPhase){}, b.listeners...)
}

// Phase returns the phase of id.
func (b *Board) Phase(id core.RecordID) (core.MarkerPhase, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.markers[id]
	if !ok {
		return core.MarkerError, false
	}
	return e.phase, true
}

// ImageSize returns the decoded size of a loaded marker image.
func (b *Board) ImageSize(id core.RecordID) (image.Point, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.markers[id]
	if !ok || e.phase != core.MarkerLoaded {
		return image.Point{}, false
	}
	return e.size, true
}

// Settle waits until no load is in flight.
func (b *Board) Settle(ctx context.Context) error {
	b.mu.Lock()
	if b.pending == 0 {
		b.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding loads and waits for them to return.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.listeners = nil
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
