package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/config"
	"github.com/rustyeddy/marginledger/feed"
	"github.com/rustyeddy/marginledger/fees"
	"github.com/rustyeddy/marginledger/journal"
	"github.com/rustyeddy/marginledger/logging"
	"github.com/rustyeddy/marginledger/notify"
	"github.com/rustyeddy/marginledger/outbox"
	"github.com/rustyeddy/marginledger/session"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// app is one assembled ledger process.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  journal.Store
	outbox *outbox.Outbox
	fees   *fees.Cache
	bus    *session.Bus
	lease  *session.Lease
	sess   *session.Session
	events *notify.Kafka
}

func openStore(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "postgres":
		return journal.NewPostgres(ctx, cfg.DSN)
	case "csv":
		return journal.NewCSV(cfg.CSVPath)
	case "memory":
		return journal.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.New(cfg.Log.Logging())

	store, err := openStore(ctx, cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	opts, err := cfg.Outbox.Options()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var src fees.Source = fees.Static{Amount: decimal.NewFromFloat(cfg.Fees.Default)}
	if cfg.Fees.URL != "" {
		src = fees.NewHTTPSource(cfg.Fees.URL)
	}

	lease, err := session.NewHost().Acquire(cfg.Account.ID)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		outbox: outbox.New(store, opts, log),
		fees:   fees.NewCache(src, cfg.Fees.Type, decimal.NewFromFloat(cfg.Fees.Default), log),
		bus:    session.NewBus(256),
		lease:  lease,
	}

	a.sess, err = session.New(lease, session.Config{
		AccountID:                 cfg.Account.ID,
		Balance:                   decimal.NewFromFloat(cfg.Account.Balance),
		Leverage:                  decimal.NewFromFloat(cfg.Account.Leverage),
		MaxLeverage:               decimal.NewFromFloat(cfg.Account.MaxLeverage),
		NegativeBalanceProtection: cfg.Account.NegativeBalanceProtection,
		Registry:                  cfg.Registry(),
		CheckInvariants:           cfg.Account.CheckInvariants,
	}, a.fees, a.outbox, a.bus, log)
	if err != nil {
		a.close()
		return nil, err
	}

	if len(cfg.Events.Brokers) > 0 {
		a.events = notify.NewKafka(notify.NewKafkaWriter(cfg.Events.Brokers, cfg.Events.Topic), log)
	}
	return a, nil
}

// priceFeed builds the configured price feed. Live feeds reconnect on failure.
func (a *app) priceFeed() (func(ctx context.Context) error, error) {
	f := a.cfg.Feed
	switch f.Type {
	case "replay":
		pace, err := f.PaceDuration()
		if err != nil {
			return nil, err
		}
		r := &feed.Replay{Path: f.Path, OnEvent: a.sess.Apply, Pace: pace}
		return func(ctx context.Context) error { return r.Run(ctx, f.Symbols, a.sess.Tick) }, nil
	case "websocket", "stream":
		backoff, maxBackoff, err := f.Backoffs()
		if err != nil {
			return nil, err
		}
		var live feed.Feed = feed.NewWebSocket(f.URL, a.log)
		if f.Type == "stream" {
			live = feed.NewStream(f.URL, a.log)
		}
		return func(ctx context.Context) error {
			return feed.Retry(ctx, live, f.Symbols, a.sess.Tick, backoff, maxBackoff, a.log)
		}, nil
	}
	return nil, fmt.Errorf("unknown feed type %q", f.Type)
}

// background starts the session loop, the fee refresher and the event sink
// on g. They stop when ctx ends.
func (a *app) background(ctx context.Context, g *errgroup.Group) error {
	interval, err := a.cfg.Fees.RefreshInterval()
	if err != nil {
		return err
	}
	g.Go(func() error {
		err := a.sess.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		a.fees.Run(ctx, interval)
		return nil
	})
	if a.events != nil {
		g.Go(func() error {
			_ = a.events.Run(ctx, a.bus)
			return nil
		})
	}
	return nil
}

// close drains the outbox and releases everything newApp acquired.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.outbox.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("outbox not drained")
	}
	if dead := a.outbox.DeadLetters(); len(dead) > 0 {
		a.log.Error().Int("count", len(dead)).Msg("effects left in dead letter queue")
	}
	st := a.outbox.Stats()
	a.log.Info().Uint64("applied", st.Applied).Uint64("failed", st.Failed).Uint64("dropped", st.Dropped).Msg("outbox closed")

	if a.events != nil {
		_ = a.events.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close journal")
	}
	a.lease.Release()
}
