package ports

import "github.com/pi-apps/a2u/internal/core/domain"

type RepoManager interface {
	Payouts() domain.PayoutRepository
	Close()
}
