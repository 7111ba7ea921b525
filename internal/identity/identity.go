// Package identity resolves Discord user IDs into what the bot shows to
// people: a display name and whether the account is automated.
package identity

import "context"

type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	IsAutomated(ctx context.Context, userID string) (bool, error)
}
