package config

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"
)

// Sarama translates the connection into a client config with delivery
// reports enabled on both channels.
func (c Connection) Sarama() (*sarama.Config, error) {
	sc := sarama.NewConfig()

	ver, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka version %q: %v", ErrInvalid, c.Version, err)
	}
	sc.Version = ver
	sc.ClientID = c.ClientID

	switch strings.ToLower(c.Producer.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("%w: required_acks %q", ErrInvalid, c.Producer.RequiredAcks)
	}

	switch strings.ToLower(c.Producer.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrInvalid, c.Producer.Compression)
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Consumer.Return.Errors = true
	if c.Admin.Timeout > 0 {
		sc.Admin.Timeout = c.Admin.Timeout
	}

	if c.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if c.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = c.SASLUser, c.SASLPass
	}
	return sc, nil
}
