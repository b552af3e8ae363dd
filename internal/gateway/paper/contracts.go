package paper

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"ctacore/internal/logger"
	"ctacore/internal/market"
	"ctacore/internal/pkg/symbol"
	"ctacore/internal/types"
)

// contractSpec is one entry of the yaml contract table. night is the
// night-session end ("23:00", "01:00", "02:30"), empty for day-only
// instruments.
type contractSpec struct {
	Symbol        string  `yaml:"symbol"`
	Exchange      string  `yaml:"exchange"`
	Name          string  `yaml:"name"`
	Multiplier    float64 `yaml:"multiplier"`
	PriceTick     float64 `yaml:"price_tick"`
	MinVolume     float64 `yaml:"min_volume"`
	StopSupported bool    `yaml:"stop_supported"`
	Night         string  `yaml:"night"`
}

func parseNight(v string) market.NightType {
	switch v {
	case string(market.Night23):
		return market.Night23
	case string(market.Night01):
		return market.Night01
	case string(market.Night0230):
		return market.Night0230
	default:
		return market.NightNone
	}
}

type contractFile struct {
	Contracts []contractSpec `yaml:"contracts"`
}

// contractTable holds the simulated venue's instrument list, reloading
// the yaml file when it changes on disk.
type contractTable struct {
	path string

	mu        sync.RWMutex
	contracts map[string]*types.Contract // vt_symbol -> contract
	nights    map[string]market.NightType

	watcher  *fsnotify.Watcher
	onReload func([]*types.Contract)
	done     chan struct{}
}

func newContractTable(path string, gatewayName string, onReload func([]*types.Contract)) (*contractTable, error) {
	t := &contractTable{
		path:      path,
		contracts: make(map[string]*types.Contract),
		nights:    make(map[string]market.NightType),
		onReload:  onReload,
		done:      make(chan struct{}),
	}
	if err := t.load(gatewayName); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *contractTable) load(gatewayName string) error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("contract table: %w", err)
	}
	var file contractFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("contract table: parse %s: %w", t.path, err)
	}

	loaded := make(map[string]*types.Contract, len(file.Contracts))
	nights := make(map[string]market.NightType, len(file.Contracts))
	for _, spec := range file.Contracts {
		ex := types.Exchange(spec.Exchange)
		if !types.ValidExchange(ex) {
			logger.Warnf("contract table: skipping %s, unknown venue %q", spec.Symbol, spec.Exchange)
			continue
		}
		if spec.PriceTick <= 0 || spec.Multiplier <= 0 {
			logger.Warnf("contract table: skipping %s, bad tick/multiplier", spec.Symbol)
			continue
		}
		minVolume := spec.MinVolume
		if minVolume <= 0 {
			minVolume = 1
		}
		// accept codes in either canonical or venue-native form
		native := symbol.ToExchange(symbol.ToStandard(spec.Symbol, ex), ex)
		c := &types.Contract{
			Symbol:        native,
			Exchange:      ex,
			Name:          spec.Name,
			Multiplier:    spec.Multiplier,
			PriceTick:     spec.PriceTick,
			MinVolume:     minVolume,
			StopSupported: spec.StopSupported,
			Gateway:       gatewayName,
		}
		loaded[c.VtSymbol()] = c
		nights[c.VtSymbol()] = parseNight(spec.Night)
	}

	t.mu.Lock()
	t.contracts = loaded
	t.nights = nights
	t.mu.Unlock()
	logger.Infof("contract table: loaded %d contracts from %s", len(loaded), t.path)
	return nil
}

// watch reloads the table whenever the file is rewritten.
func (t *contractTable) watch(gatewayName string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(t.path); err != nil {
		_ = w.Close()
		return err
	}
	t.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.load(gatewayName); err != nil {
					logger.Errorf("contract table: reload failed: %v", err)
					continue
				}
				if t.onReload != nil {
					t.onReload(t.all())
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("contract table: watch error: %v", err)
			case <-t.done:
				return
			}
		}
	}()
	return nil
}

func (t *contractTable) get(vtSymbol string) (*types.Contract, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contracts[vtSymbol]
	return c, ok
}

func (t *contractTable) night(vtSymbol string) market.NightType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nights[vtSymbol]
}

func (t *contractTable) all() []*types.Contract {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*types.Contract, 0, len(t.contracts))
	for _, c := range t.contracts {
		out = append(out, c)
	}
	return out
}

func (t *contractTable) close() {
	close(t.done)
	if t.watcher != nil {
		_ = t.watcher.Close()
	}
}
