package ports

import "context"

// Unlocker provides the secret seed of the app wallet without keeping it in
// the service configuration.
type Unlocker interface {
	GetSeed(ctx context.Context) (string, error)
}
