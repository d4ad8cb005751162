// Package session wires the playback engine together and owns its lifetime.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/bump"
	"github.com/osa030/beatdeck/internal/app/library"
	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/app/transport"
	"github.com/osa030/beatdeck/internal/domain/track"
	"github.com/osa030/beatdeck/internal/infra/config"
	"github.com/osa030/beatdeck/internal/infra/storage"
	"github.com/osa030/beatdeck/internal/infra/storefront"
)

var (
	ErrNotRunning     = errors.New("session is not running")
	ErrEmptyContainer = errors.New("container has no tracks")
)

// commandBuffer is the bus queue depth.
const commandBuffer = 64

// Deps lets callers supply components instead of building them from config.
type Deps struct {
	Output    Output
	Fetcher   preview.Fetcher
	Notifiers []bump.Notifier
	Store     storage.Store
}

// Manager owns the playback engine: resolver, reporter, controller, bus and
// persistent playlist.
type Manager struct {
	config *config.Config

	resolver   *preview.Resolver
	reporter   *bump.Reporter
	controller *playback.Controller
	bus        *transport.Bus
	library    *library.Library
	output     Output
	store      storage.Store

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// New builds every component. Missing deps are created from cfg.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Manager, error) {
	var sf *storefront.Client
	if deps.Fetcher == nil || deps.Notifiers == nil {
		c, err := storefront.New(storefront.Config{
			BaseURL: cfg.Storefront.BaseURL,
			APIKey:  cfg.Storefront.APIKey,
			Timeout: cfg.StorefrontTimeout(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create storefront client")
		}
		sf = c
	}

	fetcher := deps.Fetcher
	if fetcher == nil {
		f, err := NewFetcherFromConfig(ctx, cfg, sf)
		if err != nil {
			return nil, err
		}
		fetcher = f
	}

	notifiers := deps.Notifiers
	if notifiers == nil {
		n, err := NewNotifiersFromConfig(cfg, sf)
		if err != nil {
			return nil, err
		}
		notifiers = n
	}

	store := deps.Store
	if store == nil {
		s, err := NewStoreFromConfig(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open playlist storage")
		}
		store = s
	}

	output := deps.Output
	if output == nil {
		o, err := NewOutputFromConfig(cfg)
		if err != nil {
			store.Close()
			return nil, errors.Wrap(err, "failed to create output")
		}
		output = o
	}

	bus := transport.NewBus(commandBuffer)
	resolver := preview.NewResolver(fetcher, cfg.PreviewTTL())
	reporter := bump.NewReporter(0, notifiers...)
	controller := playback.NewController(playback.Config{
		SettleDelay:       time.Duration(cfg.Playback.SettleDelayMs) * time.Millisecond,
		ProgressInterval:  time.Duration(cfg.Playback.ProgressIntervalMs) * time.Millisecond,
		PreviousThreshold: time.Duration(cfg.Playback.PreviousThresholdMs) * time.Millisecond,
		LoadTimeout:       time.Duration(cfg.Playback.LoadTimeoutMs) * time.Millisecond,
		PrefetchNext:      cfg.Playback.PrefetchNext,
	}, output, resolver, reporter, bus)

	zlog.Info().Msgf("session: components ready source=%s output=%s playlist=%s notifiers=%d",
		cfg.Preview.Source, cfg.Output.Type, cfg.Playlist.Driver, len(notifiers))

	return &Manager{
		config:     cfg,
		resolver:   resolver,
		reporter:   reporter,
		controller: controller,
		bus:        bus,
		library:    library.Open(store, cfg.Playlist.Key),
		output:     output,
		store:      store,
		done:       make(chan struct{}),
	}, nil
}

// Start runs the bus consumer and the controller loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("session already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.bus.Run(m.ctx, m.controller)
	}()
	go func() {
		defer m.wg.Done()
		m.controller.Run(m.ctx)
	}()

	m.controller.Emit()
	zlog.Info().Msg("session: started")
	return nil
}

// Done is closed once the session has been closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Dispatch enqueues cmd on the bus.
func (m *Manager) Dispatch(ctx context.Context, cmd transport.Command) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrNotRunning
	}
	return m.bus.Dispatch(ctx, cmd)
}

// PlayContainer lists c and replaces the queue with it, starting at index.
func (m *Manager) PlayContainer(ctx context.Context, c track.Container, index int) error {
	if _, err := track.ParseContainer(c.Key()); err != nil {
		return err
	}

	tracks, err := m.resolver.ContainerTracks(ctx, c)
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", c.Key())
	}
	if len(tracks) == 0 {
		return errors.Wrapf(ErrEmptyContainer, "%s", c.Key())
	}

	return m.Dispatch(ctx, transport.ReplaceQueue{List: tracks, Index: index, SourceKey: c.Key()})
}

// PlayPlaylist replaces the queue with the persistent playlist.
func (m *Manager) PlayPlaylist(ctx context.Context, index int) error {
	tracks := m.library.Tracks()
	if len(tracks) == 0 {
		return errors.Wrap(playback.ErrEmptyQueue, "playlist is empty")
	}
	return m.Dispatch(ctx, transport.ReplaceQueue{List: tracks, Index: index, SourceKey: library.SourceKey})
}

// Snapshot returns the current now-playing state.
func (m *Manager) Snapshot() playback.Snapshot {
	return m.controller.Snapshot()
}

// Subscribe registers a snapshot subscriber.
func (m *Manager) Subscribe(buffer int) *transport.Subscription {
	return m.bus.Subscribe(buffer)
}

// Unsubscribe removes a snapshot subscriber.
func (m *Manager) Unsubscribe(id string) {
	m.bus.Unsubscribe(id)
}

// Library returns the persistent playlist.
func (m *Manager) Library() *library.Library {
	return m.library
}

// Close stops playback and releases every resource.
func (m *Manager) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Unlock()

		m.bus.Close()
		m.wg.Wait()
		m.controller.Close()
		m.reporter.Wait()

		if err := m.output.Close(); err != nil {
			zlog.Warn().Msgf("session: close output: %v", err)
		}
		if err := m.store.Close(); err != nil {
			zlog.Warn().Msgf("session: close storage: %v", err)
		}

		close(m.done)
		zlog.Info().Msg("session: closed")
	})
}
