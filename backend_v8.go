//go:build v8

package winter

import (
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/v8engine"
)

func newFactory(cfg core.EngineConfig) core.ContextFactory {
	return v8engine.NewFactory(cfg)
}
