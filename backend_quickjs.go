//go:build !v8

package winter

import (
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/quickjs"
)

func newFactory(cfg core.EngineConfig) core.ContextFactory {
	return quickjs.NewFactory(cfg)
}
