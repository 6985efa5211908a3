package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"eventbus/internal/config"
	"eventbus/internal/logging"
	"eventbus/internal/transport"
	"eventbus/weather"
)

// publisher is what the engine needs from a *producer.Producer.
type publisher interface {
	weather.Publisher
	Close() error
}

type runner interface {
	Run(ctx context.Context) error
	Close() error
}

type Engine struct {
	cfg       config.Config
	transport *transport.Server
	cluster   io.Closer
	producers map[string]publisher
	station   *weather.Station
	consumer  runner
	model     *weather.Model

	stopOnce sync.Once
	stopErr  error
}

// Weather is the model fed by the consumer.
func (e *Engine) Weather() *weather.Model { return e.model }

// Run serves until ctx is done, then shuts down: producers first so queued
// records flush, then the consumer, then the shared connection.
func (e *Engine) Run(ctx context.Context) error {
	e.transport.SetServing(true, e.topicNames()...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(e.transport.Serve)
	if e.station != nil {
		g.Go(func() error { return e.station.Run(gctx) })
	}
	if e.consumer != nil {
		g.Go(func() error {
			if err := e.consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return e.shutdown()
	})
	return g.Wait()
}

func (e *Engine) topicNames() []string {
	names := make([]string, 0, len(e.producers))
	for n := range e.producers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) shutdown() error {
	e.stopOnce.Do(func() {
		e.transport.SetServing(false, e.topicNames()...)
		var errs []error
		for _, name := range e.topicNames() {
			if err := e.producers[name].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.consumer != nil {
			if err := e.consumer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := e.cluster.Close(); err != nil {
			errs = append(errs, err)
		}
		e.transport.Stop()
		e.stopErr = errors.Join(errs...)
		if e.stopErr != nil {
			logging.L().Warn("shutdown finished with errors", "err", e.stopErr)
		} else {
			logging.L().Info("shutdown complete")
		}
	})
	return e.stopErr
}
