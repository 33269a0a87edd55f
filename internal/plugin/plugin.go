// Package plugin is the lifecycle object that owns one rename session: it
// wires the alias store, scanner and change watcher to a live document on
// Start and tears every subscription and timer down on Stop.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pbaille/localrename/internal/alias"
	"github.com/pbaille/localrename/internal/config"
	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/domain"
	"github.com/pbaille/localrename/internal/eventloop"
	"github.com/pbaille/localrename/internal/resolver"
	"github.com/pbaille/localrename/internal/rewrite"
	"github.com/pbaille/localrename/internal/scanner"
	"github.com/pbaille/localrename/internal/watcher"
)

var (
	// ErrAlreadyStarted is returned by Start on a running plugin
	ErrAlreadyStarted = errors.New("plugin already started")

	// ErrNotStarted is returned by settings actions outside a session
	ErrNotStarted = errors.New("plugin not started")
)

// Plugin renames items of a host document with locally stored aliases.
// Every exported method hops onto the event loop and must not be called
// from it.
type Plugin struct {
	loop    *eventloop.Loop
	persist alias.Persistence
	cfg     config.Config
	logger  *slog.Logger

	roots     []dom.Matcher
	selectors []dom.Matcher

	session *session
}

// session is everything Start builds and Stop discards
type session struct {
	id       string
	doc      *dom.Document
	aliases  *alias.Store
	scanner  *scanner.Scanner
	watcher  *watcher.Watcher
	settle   *eventloop.Timer
	rescan   *eventloop.Timer
	fallback *eventloop.Timer
	logger   *slog.Logger
	scans    int
}

// Option customizes a Plugin
type Option func(*Plugin)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		p.logger = l
	}
}

// New validates cfg and returns a stopped plugin
func New(loop *eventloop.Loop, persist alias.Persistence, cfg config.Config, opts ...Option) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	roots, err := dom.CompileAll(cfg.RootSelectors)
	if err != nil {
		return nil, err
	}
	selectors, err := dom.CompileAll(cfg.ScanSelectors)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		loop:      loop,
		persist:   persist,
		cfg:       cfg,
		logger:    slog.Default(),
		roots:     roots,
		selectors: selectors,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start loads the aliases, schedules the settle-delayed full scan and
// attaches the change watcher to doc.
func (p *Plugin) Start(ctx context.Context, doc *dom.Document) error {
	var err error
	if doErr := p.loop.Do(ctx, func() { err = p.start(doc) }); doErr != nil {
		return doErr
	}
	return err
}

func (p *Plugin) start(doc *dom.Document) error {
	if p.session != nil {
		return ErrAlreadyStarted
	}

	s := &session{id: uuid.New().String(), doc: doc}
	logger := p.logger.With("session", s.id[:8])
	s.logger = logger

	s.aliases = alias.NewStore(p.persist, p.cfg.PluginKey, p.cfg.StorageKey, logger)
	if err := s.aliases.Load(); err != nil {
		logger.Warn("aliases unavailable, starting empty", "error", err)
	}

	rw := rewrite.New()
	sc, err := scanner.New(s.aliases, resolver.New(p.cfg.Namespace), rw, scanner.Options{
		ItemAttribute: p.cfg.ItemAttribute,
		Selectors:     p.selectors,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("build scanner: %w", err)
	}
	s.scanner = sc
	s.watcher = watcher.New(p.roots, p.loop, sc, rw, logger)

	p.session = s

	s.watcher.Attach(doc)
	s.settle = p.loop.After(p.cfg.SettleDelay, func() {
		p.scanWhole(s, "settle")
	})
	if s.watcher.State() != watcher.Attached {
		p.scheduleFallback(s)
	}

	logger.Info("plugin started", "aliases", s.aliases.Len(), "watcher", s.watcher.State().String())
	return nil
}

// Stop cancels pending timers and detaches the watcher. Stopping a stopped
// plugin is a no-op.
func (p *Plugin) Stop(ctx context.Context) error {
	return p.loop.Do(ctx, p.stop)
}

func (p *Plugin) stop() {
	s := p.session
	if s == nil {
		return
	}
	s.settle.Stop()
	s.rescan.Stop()
	s.fallback.Stop()
	s.watcher.Detach()
	p.session = nil
	s.logger.Info("plugin stopped", "scans", s.scans)
}

// AddAlias stores label for id and schedules a full scan
func (p *Plugin) AddAlias(ctx context.Context, id, label string) (domain.AliasEntry, error) {
	var (
		entry domain.AliasEntry
		err   error
	)
	doErr := p.loop.Do(ctx, func() {
		s := p.session
		if s == nil {
			err = ErrNotStarted
			return
		}
		entry, err = s.aliases.Add(id, label)
		if err != nil && errors.Is(err, alias.ErrInvalidAlias) {
			return
		}
		p.scheduleRescan(s)
		s.logger.Info("alias added", "id", entry.ID, "label", entry.Label)
	})
	if doErr != nil {
		return entry, doErr
	}
	return entry, err
}

// RemoveAlias deletes the alias for id and schedules a full scan, which
// restores the original label
func (p *Plugin) RemoveAlias(ctx context.Context, id string) error {
	var err error
	doErr := p.loop.Do(ctx, func() {
		s := p.session
		if s == nil {
			err = ErrNotStarted
			return
		}
		err = s.aliases.Remove(id)
		if err != nil && errors.Is(err, alias.ErrNotFound) {
			return
		}
		p.scheduleRescan(s)
		s.logger.Info("alias removed", "id", id)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Aliases returns the current aliases sorted by id
func (p *Plugin) Aliases(ctx context.Context) ([]domain.AliasEntry, error) {
	var (
		entries []domain.AliasEntry
		err     error
	)
	doErr := p.loop.Do(ctx, func() {
		if p.session == nil {
			err = ErrNotStarted
			return
		}
		entries = p.session.aliases.Entries()
	})
	if doErr != nil {
		return nil, doErr
	}
	return entries, err
}

// Rescan runs a full scan now
func (p *Plugin) Rescan(ctx context.Context) (scanner.Report, error) {
	var (
		rep scanner.Report
		err error
	)
	doErr := p.loop.Do(ctx, func() {
		if p.session == nil {
			err = ErrNotStarted
			return
		}
		rep = p.scanWhole(p.session, "manual")
	})
	if doErr != nil {
		return rep, doErr
	}
	return rep, err
}

// WatcherState reports the change watcher state; Detached when stopped
func (p *Plugin) WatcherState(ctx context.Context) (watcher.State, error) {
	state := watcher.Detached
	err := p.loop.Do(ctx, func() {
		if p.session != nil {
			state = p.session.watcher.State()
		}
	})
	return state, err
}

func (p *Plugin) scanWhole(s *session, reason string) scanner.Report {
	if p.session != s {
		return scanner.Report{}
	}
	rep := s.scanner.ScanWhole(s.doc.Root())
	s.scans++
	s.logger.Debug("full scan", "reason", reason,
		"examined", rep.Examined, "renamed", rep.Renamed, "restored", rep.Restored)
	return rep
}

func (p *Plugin) scheduleRescan(s *session) {
	s.rescan.Stop()
	s.rescan = p.loop.After(p.cfg.RescanDelay, func() {
		p.scanWhole(s, "settings")
	})
}

// scheduleFallback keeps retrying the watcher and scanning the whole tree
// until a navigation root shows up
func (p *Plugin) scheduleFallback(s *session) {
	if p.cfg.FallbackInterval <= 0 {
		return
	}
	s.fallback = p.loop.After(p.cfg.FallbackInterval, func() {
		if p.session != s {
			return
		}
		attached := s.watcher.Attach(s.doc)
		p.scanWhole(s, "fallback")
		if !attached {
			p.scheduleFallback(s)
		}
	})
}
