package identity

import (
	"github.com/foxseedlab/genkaipoint/internal/config"
	discordpkg "github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/identity"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (identity.Directory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discordpkg.Client](i)
		return NewCachedDirectory(dc, cfg.DiscordGuildID, cfg.DisplayNameCacheTTL()), nil
	})
}
