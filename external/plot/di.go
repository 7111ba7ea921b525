package plot

import (
	plotpkg "github.com/foxseedlab/genkaipoint/internal/plot"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (plotpkg.Renderer, error) {
		return NewGonumRenderer(), nil
	})
}
