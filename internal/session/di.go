package session

import (
	"github.com/foxseedlab/genkaipoint/internal/clock"
	"github.com/foxseedlab/genkaipoint/internal/config"
	"github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/identity"
	"github.com/foxseedlab/genkaipoint/internal/metrics"
	"github.com/foxseedlab/genkaipoint/internal/plot"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		store := do.MustInvoke[repository.SessionStore](i)
		rec := do.MustInvoke[metrics.Recorder](i)
		return NewManager(store, clock.Real(), rec), nil
	})
	do.Provide(injector, func(i do.Injector) (*Stats, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[repository.SessionStore](i)
		directory := do.MustInvoke[identity.Directory](i)
		return NewStats(store, directory, clock.Real(), cfg.Location()), nil
	})
	do.Provide(injector, func(i do.Injector) (*Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		manager := do.MustInvoke[*Manager](i)
		stats := do.MustInvoke[*Stats](i)
		directory := do.MustInvoke[identity.Directory](i)
		renderer := do.MustInvoke[plot.Renderer](i)
		rec := do.MustInvoke[metrics.Recorder](i)
		return NewBot(cfg, dc, manager, stats, directory, renderer, clock.Real(), rec)
	})
}
