package strategies

import (
	"ctacore/internal/cta"
)

// Register installs every built-in strategy class on the engine.
func Register(engine *cta.Engine) {
	engine.RegisterClass("DoubleMa", NewDoubleMa)
	engine.RegisterClass("Macd", NewMacd)
}
