package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"eventbus/consumer"
	"eventbus/internal/config"
	"eventbus/internal/logging"
	"eventbus/internal/telemetry"
	"eventbus/internal/transport"
	"eventbus/producer"
	"eventbus/weather"
)

// Bootstrap connects to Kafka, provisions every configured topic and wires
// the optional weather station and consumer. Nothing runs until Run.
func Bootstrap(ctx context.Context, cfg config.Config) (*Engine, error) {
	// 1. health endpoint, NOT_SERVING until producers are up
	srv, err := transport.StartServer(cfg.HealthPort)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	// 2. shared kafka connection
	cluster, err := producer.Dial(cfg.Kafka)
	if err != nil {
		srv.Stop()
		return nil, err
	}

	e := &Engine{cfg: cfg, transport: srv, cluster: cluster, model: weather.NewModel()}

	// 3. producers, one per topic, built concurrently; provisioning of the
	//    same topic collapses inside the cluster's provisioner
	producers, err := buildProducers(ctx, cluster, cfg.Topics)
	if err != nil {
		e.shutdown()
		return nil, err
	}
	e.producers = make(map[string]publisher, len(producers))
	for name, p := range producers {
		e.producers[name] = p
	}

	// 4. weather station
	if cfg.Station.Enabled {
		e.station = weather.NewStation(cfg.Station.Name, cfg.Station.Interval, e.producers[cfg.Station.Topic])
	}

	// 5. weather consumer
	if cfg.Consumer.Enabled {
		c, err := consumer.New(cfg.Kafka, consumer.Config{
			GroupID:   cfg.Consumer.GroupID,
			Topics:    cfg.Consumer.Topics,
			StartFrom: cfg.Consumer.StartFrom,
		}, cluster.Serializer(), e.model)
		if err != nil {
			e.shutdown()
			return nil, fmt.Errorf("consumer: %w", err)
		}
		e.consumer = c
	}

	// 6. metrics
	telemetry.Expose(ctx, cfg.MetricsPort)

	return e, nil
}

func buildProducers(ctx context.Context, cluster *producer.Cluster, topics []config.TopicCfg) (map[string]*producer.Producer, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*producer.Producer, len(topics))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range topics {
		g.Go(func() error {
			p, err := cluster.NewProducer(gctx, topicConfig(t), nil)
			if err != nil {
				return fmt.Errorf("producer %s: %w", t.Name, err)
			}
			mu.Lock()
			out[t.Name] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range out {
			_ = p.Close()
		}
		return nil, err
	}
	logging.L().Info("producers ready", "topics", cluster.Topics().Names())
	return out, nil
}

func topicConfig(t config.TopicCfg) producer.TopicConfig {
	return producer.TopicConfig{
		Name:        t.Name,
		KeySchema:   t.KeySchema,
		ValueSchema: t.ValueSchema,
		Partitions:  t.Partitions,
		Replication: t.Replication,
	}
}
