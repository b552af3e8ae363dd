// Package app wires one trading session: event loop, persistence,
// gateways, ledger and strategy engines, all from config.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"ctacore/internal/config"
	"ctacore/internal/cta"
	"ctacore/internal/event"
	"ctacore/internal/gateway"
	"ctacore/internal/gateway/paper"
	"ctacore/internal/ledger"
	"ctacore/internal/logger"
	"ctacore/internal/notify"
	"ctacore/internal/portfolio"
	"ctacore/internal/store"
	"ctacore/internal/store/filestore"
	"ctacore/internal/store/gormstore"
	"ctacore/internal/strategies"
)

// App is one wired trading session.
type App struct {
	cfg *config.Config

	events    *event.Engine
	store     store.Store
	gateways  map[string]gateway.Gateway
	ledger    *ledger.Engine
	cta       *cta.Engine
	portfolio *portfolio.Engine
}

// New builds the session from config. Nothing runs until Run.
func New(cfg *config.Config) (*App, error) {
	logger.SetLevel(cfg.App.LogLevel)

	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	events := event.NewEngine(time.Duration(cfg.App.TimerIntervalSec) * time.Second)

	gateways := make(map[string]gateway.Gateway)
	if cfg.Paper.Enabled {
		pg := paper.New(events, cfg.Paper.ContractsFile)
		gateways[pg.Name()] = pg
	}

	commissions, err := config.LoadCommissions(cfg.Ledger.CommissionsFile)
	if err != nil {
		return nil, err
	}
	led := ledger.NewEngine(events, st, commissions, cfg.Ledger.TimerInterval)

	notifier := notify.LogNotifier{}

	ctaEngine := cta.NewEngine(events, st, gateways, notifier, led)
	strategies.Register(ctaEngine)
	ctaEngine.SetHotContracts(cfg.Market.HotContracts)
	ctaEngine.SetCutoverHour(cfg.Market.CutoverHour)

	pfEngine := portfolio.NewEngine(events, st, gateways, notifier)

	return &App{
		cfg:       cfg,
		events:    events,
		store:     st,
		gateways:  gateways,
		ledger:    led,
		cta:       ctaEngine,
		portfolio: pfEngine,
	}, nil
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return gormstore.New(filepath.Join(cfg.Path, "ctacore.db"))
	case "file":
		return filestore.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Cta exposes the strategy engine for management surfaces.
func (a *App) Cta() *cta.Engine { return a.cta }

// Portfolio exposes the multi-instrument engine.
func (a *App) Portfolio() *portfolio.Engine { return a.portfolio }

// Run starts everything and blocks until ctx is cancelled, then shuts
// the session down in reverse order. Engine wiring and strategy loading
// happen before the loop starts so engine state is never touched from
// two goroutines; strategy init runs through the engines' own workers
// afterwards.
func (a *App) Run(ctx context.Context) error {
	a.ledger.Register()
	a.cta.Start()
	a.portfolio.Start()

	g := new(errgroup.Group)
	for name, gw := range a.gateways {
		g.Go(func() error {
			if err := gw.Connect(); err != nil {
				return fmt.Errorf("connect gateway %s: %w", name, err)
			}
			logger.Infof("gateway %s connected", name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.shutdown()
		return err
	}

	a.loadConfigured()
	if a.cfg.App.AutoStart {
		a.registerAutoStart()
		a.portfolio.InitAll()
		a.portfolio.StartAll()
	}

	a.events.Start()
	if a.cfg.App.AutoStart {
		a.cta.InitAll()
	}

	<-ctx.Done()
	a.shutdown()
	return nil
}

// loadConfigured registers persisted strategies first, then fills in
// the ones declared in config that are not persisted yet.
func (a *App) loadConfigured() {
	a.cta.LoadStrategies()
	a.portfolio.LoadStrategies()

	for _, s := range a.cfg.Strategies {
		if _, ok := a.cta.Strategies()[s.Name]; ok {
			continue
		}
		if err := a.cta.AddStrategy(s.Class, s.Name, s.VtSymbol, s.Gateway, s.Setting); err != nil {
			logger.Errorf("app: add strategy %s: %v", s.Name, err)
		}
	}
	for _, p := range a.cfg.Portfolios {
		if err := a.portfolio.AddStrategy(p.Class, p.Name, p.VtSymbols, p.Gateway, p.Setting); err != nil {
			logger.Errorf("app: add portfolio strategy %s: %v", p.Name, err)
		}
	}
}

// registerAutoStart starts each cta strategy when its init-completion
// event lands. The handler runs on the dispatch goroutine, so the start
// happens on the loop like every other state change. Must be called
// after loadConfigured and before the loop starts.
func (a *App) registerAutoStart() {
	pending := make(map[string]bool)
	for name := range a.cta.Strategies() {
		pending[name] = true
	}

	a.events.Register(event.TypeCtaStrategy, func(evt event.Event) {
		d, ok := evt.Data.(*cta.StrategyData)
		if !ok || !d.Inited || d.Trading || !pending[d.StrategyName] {
			return
		}
		delete(pending, d.StrategyName)
		if err := a.cta.StartStrategy(d.StrategyName); err != nil {
			logger.Errorf("app: start strategy %s: %v", d.StrategyName, err)
		}
	})
}

func (a *App) shutdown() {
	a.cta.Close()
	a.portfolio.Close()
	a.ledger.Close()
	for name, gw := range a.gateways {
		if err := gw.Close(); err != nil {
			logger.Errorf("app: close gateway %s: %v", name, err)
		}
	}
	a.events.Stop()
	if err := a.store.Close(); err != nil {
		logger.Errorf("app: close store: %v", err)
	}
	logger.Infof("session closed")
}
