package producer

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type TopicSpec struct {
	Name        string
	Partitions  int32
	Replication int16
}

func (s TopicSpec) String() string {
	return fmt.Sprintf("%s(partitions=%d, replication=%d)", s.Name, s.Partitions, s.Replication)
}

// Admin is the slice of cluster administration provisioning needs.
type Admin interface {
	ListTopics(ctx context.Context) (map[string]struct{}, error)
	// CreateTopics returns one result per requested topic name.
	CreateTopics(ctx context.Context, specs []TopicSpec) map[string]error
	Close() error
}

type saramaAdmin struct {
	ca sarama.ClusterAdmin
}

func NewSaramaAdmin(ca sarama.ClusterAdmin) Admin { return &saramaAdmin{ca: ca} }

// sarama admin calls are synchronous; they run in a goroutine so ctx bounds
// how long the caller waits.
func (a *saramaAdmin) ListTopics(ctx context.Context) (map[string]struct{}, error) {
	type result struct {
		topics map[string]sarama.TopicDetail
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := a.ca.ListTopics()
		ch <- result{t, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		out := make(map[string]struct{}, len(r.topics))
		for name := range r.topics {
			out[name] = struct{}{}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *saramaAdmin) CreateTopics(ctx context.Context, specs []TopicSpec) map[string]error {
	type result struct {
		name string
		err  error
	}
	ch := make(chan result, len(specs))
	for _, s := range specs {
		go func(s TopicSpec) {
			err := a.ca.CreateTopic(s.Name, &sarama.TopicDetail{
				NumPartitions:     s.Partitions,
				ReplicationFactor: s.Replication,
			}, false)
			ch <- result{s.Name, err}
		}(s)
	}

	out := make(map[string]error, len(specs))
	for range specs {
		select {
		case r := <-ch:
			out[r.name] = r.err
		case <-ctx.Done():
			for _, s := range specs {
				if _, ok := out[s.Name]; !ok {
					out[s.Name] = ctx.Err()
				}
			}
			return out
		}
	}
	return out
}

func (a *saramaAdmin) Close() error { return a.ca.Close() }
