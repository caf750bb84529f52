package snapshot

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// AutoSaveConfig configures AutoSave.
type AutoSaveConfig struct {
	// Logger receives capture and store failures (default: zap.NewNop()).
	// AutoSave keeps watching after a failed save and retries on the
	// next change.
	Logger *zap.Logger
}

// AutoSaveOption configures AutoSave.
type AutoSaveOption func(*AutoSaveConfig)

// WithLogger sets the autosave logger.
func WithLogger(l *zap.Logger) AutoSaveOption {
	return func(c *AutoSaveConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// AutoSaver persists a reactive source whenever it changes.
type AutoSaver struct {
	store  Store
	name   string
	src    any
	logger *zap.Logger
	stop   quiver.StopHandle

	mu   sync.Mutex
	last uint64
}

// AutoSave saves src under name immediately, then re-saves after each
// flush in which src changed. Saves whose content checksum matches the
// last stored one are skipped, so a mutation cycle that lands back on
// the same state writes nothing.
//
// src must be a reactive Map, List, or cell. The watcher runs on the
// post stage of the runtime flush; the store call happens inline on the
// runtime goroutine. ctx is used for every store call and is expected to
// outlive the saver.
func AutoSave(ctx context.Context, rt *quiver.Runtime, store Store, name string, src any, opts ...AutoSaveOption) (*AutoSaver, error) {
	config := AutoSaveConfig{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&config)
	}

	if _, isCell := src.(quiver.Cell); !isCell && !quiver.IsWrapped(src) {
		return nil, fmt.Errorf("snapshot: autosave needs a reactive source, got %T", src)
	}

	a := &AutoSaver{
		store:  store,
		name:   name,
		src:    src,
		logger: config.Logger,
	}

	snap, err := SaveTo(ctx, store, name, src)
	if err != nil {
		return nil, err
	}
	a.last = snap.Checksum

	a.stop = rt.Watch(src, func(_, _ any, _ func(func())) {
		a.save(ctx)
	}, quiver.Deep(), quiver.WithFlush(quiver.FlushPost))

	return a, nil
}

// Stop detaches the watcher. The last saved snapshot stays in the store.
func (a *AutoSaver) Stop() { a.stop() }

// LastChecksum returns the checksum of the last stored snapshot.
func (a *AutoSaver) LastChecksum() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *AutoSaver) save(ctx context.Context) {
	snap, err := Capture(a.src)
	if err != nil {
		a.logger.Warn("autosave capture failed",
			zap.String("name", a.name), zap.Error(err))
		return
	}

	a.mu.Lock()
	unchanged := snap.Checksum == a.last
	a.mu.Unlock()
	if unchanged {
		return
	}

	data, err := Encode(snap)
	if err != nil {
		a.logger.Warn("autosave encode failed",
			zap.String("name", a.name), zap.Error(err))
		return
	}
	if err := a.store.Save(ctx, a.name, data); err != nil {
		a.logger.Warn("autosave store failed",
			zap.String("name", a.name), zap.Error(err))
		return
	}

	a.mu.Lock()
	a.last = snap.Checksum
	a.mu.Unlock()
}
