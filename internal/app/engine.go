// Package app wires the simulado engine from configuration. The gateway
// and the CLI both start from Open.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/genem/simulado/internal/auth"
	"github.com/genem/simulado/internal/chat"
	"github.com/genem/simulado/internal/config"
	"github.com/genem/simulado/internal/db"
	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
	"github.com/genem/simulado/internal/simulado"
	"github.com/genem/simulado/internal/state"
	"github.com/genem/simulado/internal/topicfilter"
)

type Engine struct {
	Store    state.Store
	Tokens   *auth.TokenStore
	Verifier *auth.Verifier
	Auth     *auth.Service
	Exams    *examapi.Client
	Session  *simulado.Controller
	Topics   *topicfilter.Aggregator
	Chat     *chat.Cache

	sqlDB        *sql.DB
	fallbackUser string
}

// OpenStore opens the persisted state backend named by cfg.StateDriver.
// The returned *sql.DB is nil for non-SQL backends.
func OpenStore(ctx context.Context, cfg config.Config) (state.Store, *sql.DB, error) {
	switch cfg.StateDriver {
	case "memory":
		return state.NewMemoryStore(), nil, nil
	case "redis":
		st, err := state.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		}, "")
		return st, nil, err
	case string(db.DriverSQLite), string(db.DriverPostgres):
		dbh, err := db.Open(ctx, db.Driver(cfg.StateDriver), cfg.StateDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		return state.NewSQLStore(dbh, cfg.StateDriver), dbh, nil
	default:
		return nil, nil, fmt.Errorf("unsupported state driver %q", cfg.StateDriver)
	}
}

// Open builds every component over one state store.
func Open(ctx context.Context, cfg config.Config) (*Engine, error) {
	st, dbh, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine{Store: st, sqlDB: dbh, Verifier: auth.NewVerifier(cfg.AuthHMACSecret)}

	e.Tokens, err = auth.NewTokenStore(ctx, st, cfg.TokenPassphrase, e.Verifier)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("token store: %w", err)
	}
	e.Auth = auth.NewService(auth.NewClient(cfg.AuthAPIURL, cfg.HTTPTimeout, e.Tokens), e.Tokens)
	e.Exams = examapi.New(examapi.Config{
		BaseURL:     cfg.ExamAPIURL,
		Timeout:     cfg.HTTPTimeout,
		TokenSource: e.Tokens,
	})

	e.fallbackUser = cfg.UserID
	e.Session, err = simulado.New(ctx, e.Exams, st, simulado.Options{
		UserID:           e.UserID,
		UseMockData:      cfg.UseMockData,
		DefaultTimeLimit: cfg.DefaultTimeLimit,
		SubmitTimeout:    cfg.SubmitTimeout,
		TickInterval:     cfg.TickInterval,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Topics = topicfilter.New(e.Exams, func(ids []string) {
		logger.Debug("topic filter now matches %d topics", len(ids))
	})
	e.Chat = chat.NewCache(e.Exams, e.UserID)
	return e, nil
}

// UserID is the logged in user, or the configured one when nobody is.
func (e *Engine) UserID() string {
	if sub := e.Auth.UserID(); sub != "" {
		return sub
	}
	return e.fallbackUser
}

// Ready reports whether the state backend answers.
func (e *Engine) Ready(ctx context.Context) error {
	if e.sqlDB != nil {
		return e.sqlDB.PingContext(ctx)
	}
	_, _, err := e.Store.Get(ctx, state.KeyAppState)
	return err
}

func (e *Engine) Close() {
	if e.Session != nil {
		e.Session.Close()
	}
	if e.Tokens != nil {
		e.Tokens.Close()
	}
	var errs []error
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if e.sqlDB != nil {
		errs = append(errs, e.sqlDB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("engine close: %v", err)
	}
}
