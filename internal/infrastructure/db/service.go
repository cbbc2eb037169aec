package db

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/internal/core/ports"
	badgerdb "github.com/pi-apps/a2u/internal/infrastructure/db/badger"
	pgdb "github.com/pi-apps/a2u/internal/infrastructure/db/postgres"
	sqlitedb "github.com/pi-apps/a2u/internal/infrastructure/db/sqlite"
)

const (
	TypeBadger   = "badger"
	TypeSqlite   = "sqlite"
	TypePostgres = "postgres"
)

var (
	allowedTypes = strings.Join([]string{TypeBadger, TypeSqlite, TypePostgres}, ",")
)

// ServiceConfig selects the backend with DbType. DbConfig is, by type:
//   - badger: [baseDir string, logger badger.Logger]
//   - sqlite: [baseDir string]
//   - postgres: [dsn string]
type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	payoutRepo domain.PayoutRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		payoutRepo domain.PayoutRepository
		err        error
	)
	switch config.DbType {
	case TypeBadger:
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		payoutRepo, err = badgerdb.NewPayoutRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open payout db: %s", err)
		}
	case TypeSqlite:
		if len(config.DbConfig) != 1 {
			return nil, fmt.Errorf("sqlite db config must have 1 element, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		db, err := sqlitedb.OpenDb(baseDir)
		if err != nil {
			return nil, err
		}
		payoutRepo, err = sqlitedb.NewPayoutRepository(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open payout db: %s", err)
		}
	case TypePostgres:
		if len(config.DbConfig) != 1 {
			return nil, fmt.Errorf("postgres db config must have 1 element, got %d", len(config.DbConfig))
		}
		dsn, ok := config.DbConfig[0].(string)
		if !ok || len(dsn) <= 0 {
			return nil, fmt.Errorf("invalid postgres dsn")
		}
		db, err := pgdb.OpenDb(dsn)
		if err != nil {
			return nil, err
		}
		payoutRepo, err = pgdb.NewPayoutRepository(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open payout db: %s", err)
		}
	default:
		return nil, fmt.Errorf("unsopported db type %s, please select one of %s", config.DbType, allowedTypes)
	}

	return &service{payoutRepo}, nil
}

func (s *service) Payouts() domain.PayoutRepository {
	return s.payoutRepo
}

func (s *service) Close() {
	s.payoutRepo.Close()
}
