package event

import (
	"runtime/debug"
	"sync"
	"time"

	"ctacore/internal/logger"
)

// Well-known event types. Engines register against these and put their
// own derived events back on the same queue.
const (
	TypeTimer    = "timer"
	TypeTick     = "tick"
	TypeBar      = "bar"
	TypeOrder    = "order"
	TypeTrade    = "trade"
	TypeContract = "contract"
	TypeLog      = "log"

	TypeCtaStrategy  = "cta_strategy"
	TypeCtaStopOrder = "cta_stop_order"
	TypeCtaInit      = "cta_init"
	TypePmContract   = "pm_contract"
	TypePmPortfolio  = "pm_portfolio"
	TypePmTrade      = "pm_trade"
)

// Event 队列中的一条消息。Data 的具体类型由 Type 约定。
type Event struct {
	Type string
	Data any
}

// Handler processes one event. Handlers run on the engine's single
// dispatch goroutine, so they never race with each other.
type Handler func(Event)

// Engine is the single event loop everything in the process hangs off.
// All handlers run sequentially on one goroutine; engines that need to
// do slow work spawn their own goroutines and re-inject result events.
type Engine struct {
	interval time.Duration

	msgCh  chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
	general  []Handler
}

// NewEngine creates an engine emitting a TypeTimer event every interval.
// interval <= 0 falls back to one second.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		interval: interval,
		msgCh:    make(chan Event, 1000),
		stopCh:   make(chan struct{}),
		handlers: make(map[string][]Handler),
	}
}

func (e *Engine) Start() {
	e.wg.Add(2)
	go e.runLoop()
	go e.runTimer()
}

func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// Put enqueues an event. It drops the event with a warning if the engine
// is stopped rather than blocking the caller forever.
func (e *Engine) Put(evt Event) {
	select {
	case e.msgCh <- evt:
	case <-e.stopCh:
		logger.Warnf("event engine stopped, dropping %s", evt.Type)
	}
}

// Register subscribes a handler to one event type. Duplicate registration
// is the caller's problem; handlers cannot be compared for identity.
func (e *Engine) Register(eventType string, h Handler) {
	e.mu.Lock()
	e.handlers[eventType] = append(e.handlers[eventType], h)
	e.mu.Unlock()
}

// RegisterGeneral subscribes a handler to every event type.
func (e *Engine) RegisterGeneral(h Handler) {
	e.mu.Lock()
	e.general = append(e.general, h)
	e.mu.Unlock()
}

func (e *Engine) runLoop() {
	defer e.wg.Done()
	logger.Infof("event engine started")

	for {
		select {
		case evt := <-e.msgCh:
			e.process(evt)
		case <-e.stopCh:
			// drain what is already queued so late events are not lost
			for {
				select {
				case evt := <-e.msgCh:
					e.process(evt)
				default:
					logger.Infof("event engine stopping")
					return
				}
			}
		}
	}
}

func (e *Engine) runTimer() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Put(Event{Type: TypeTimer})
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) process(evt Event) {
	e.mu.RLock()
	typed := e.handlers[evt.Type]
	general := e.general
	e.mu.RUnlock()

	for _, h := range typed {
		e.safeCall(evt, h)
	}
	for _, h := range general {
		e.safeCall(evt, h)
	}
}

// safeCall isolates one handler: a panic is logged and swallowed so a
// single bad subscriber cannot take the loop down, and slow handlers
// get flagged because they delay every event behind them.
func (e *Engine) safeCall(evt Event, h Handler) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panic on %s: %v", evt.Type, r)
			debug.PrintStack()
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("slow handler on %s took %v", evt.Type, dur)
		}
	}()
	h(evt)
}
