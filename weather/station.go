package weather

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"eventbus/internal/logging"
	"eventbus/producer"
)

// Publisher is the part of *producer.Producer a Station needs.
type Publisher interface {
	Topic() string
	Publish(ctx context.Context, key, value any) (*producer.Delivery, error)
}

var statuses = []string{"sunny", "partly_cloudy", "cloudy", "windy", "rainy"}

// Station publishes a reading every Interval, keyed by Name. Temperature
// drifts by at most one degree per tick.
type Station struct {
	Name     string
	Interval time.Duration
	pub      Publisher
	rnd      *rand.Rand
	last     Reading
}

func NewStation(name string, interval time.Duration, pub Publisher) *Station {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Station{
		Name:     name,
		Interval: interval,
		pub:      pub,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		last:     Reading{Temperature: DefaultTemperature, Status: DefaultStatus},
	}
}

func (s *Station) next() Reading {
	t := s.last.Temperature + (s.rnd.Float64()*2 - 1)
	t = math.Round(t*10) / 10
	if s.rnd.IntN(4) == 0 {
		s.last.Status = statuses[s.rnd.IntN(len(statuses))]
	}
	s.last.Temperature = t
	return s.last
}

// Emit publishes one reading. Delivery is reported asynchronously.
func (s *Station) Emit(ctx context.Context) (*producer.Delivery, Reading, error) {
	r := s.next()
	d, err := s.pub.Publish(ctx, s.Name, r.Native())
	return d, r, err
}

// Run emits until ctx is done. A rejected reading is logged and the
// station keeps ticking.
func (s *Station) Run(ctx context.Context) error {
	log := logging.Topic(s.pub.Topic(), "emit").With("station", s.Name)
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if _, r, err := s.Emit(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("reading rejected", "err", err)
			} else {
				log.Debug("reading sent", "temperature", r.Temperature, "status", r.Status)
			}
		}
	}
}
