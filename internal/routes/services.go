package routes

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/escrowledger/internal/audit"
	"github.com/congo-pay/escrowledger/internal/commission"
	"github.com/congo-pay/escrowledger/internal/config"
	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/escrow"
	"github.com/congo-pay/escrowledger/internal/events"
	"github.com/congo-pay/escrowledger/internal/funding"
	"github.com/congo-pay/escrowledger/internal/ledger"
	"github.com/congo-pay/escrowledger/internal/notification"
	"github.com/congo-pay/escrowledger/internal/retry"
	"github.com/congo-pay/escrowledger/internal/store"
	"github.com/congo-pay/escrowledger/internal/store/memory"
	"github.com/congo-pay/escrowledger/internal/store/postgres"
	"github.com/congo-pay/escrowledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services holds the wired domain services.
type Services struct {
	Store      store.Store
	Bus        *events.Bus
	Commission *commission.Service
	Wallets    *wallet.Service
	Ledger     *ledger.Service
	Escrow     *escrow.Manager
	Reaper     *escrow.Reaper
	Funding    *funding.Service
	Audit      *audit.Service
}

// NewServices picks the store backend and wires every service over it. Without
// a database the in-memory store is used, which only dev environments allow.
func NewServices(d Deps) (*Services, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Cfg.DefaultCurrency != "" {
		domain.DefaultCurrency = d.Cfg.DefaultCurrency
	}

	var st store.Store
	if d.DB != nil {
		st = postgres.New(d.DB)
	} else {
		d.Logger.Warn("no database configured, using the in-memory store")
		st = memory.New()
	}

	schedule, err := commission.LoadSchedule(d.Cfg.CommissionScheduleFile)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(d.Logger)
	bus.Subscribe("event-log", events.LogHandler(d.Logger))
	notifiers := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		notifiers = append(notifiers, notification.NewRedisNotifier(d.Cache, d.Cfg.NotifyChannel))
	}
	bus.Subscribe("notifications", notification.Subscriber(notifiers))

	journal := ledger.NewJournal(st, bus, d.Logger)
	comm := commission.NewService(st, schedule)
	ledgerSvc := ledger.NewService(st, comm, journal, bus, d.Logger)
	manager := escrow.NewManager(st, comm, journal, bus, d.Logger, d.Cfg.EscrowDefaultTTL)

	policy := retry.DefaultPolicy()
	if d.Cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = d.Cfg.RetryMaxAttempts
	}
	reaper := escrow.NewReaper(manager, st, d.Logger, d.Cfg.ReaperBatchSize, d.Cfg.ReaperInterval).WithPolicy(policy)

	return &Services{
		Store:      st,
		Bus:        bus,
		Commission: comm,
		Wallets:    wallet.NewService(st, bus),
		Ledger:     ledgerSvc,
		Escrow:     manager,
		Reaper:     reaper,
		Funding:    funding.NewService(ledgerSvc, nil),
		Audit:      audit.NewService(st),
	}, nil
}
