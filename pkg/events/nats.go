// Package events delivers engine events over NATS.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"

	"github.com/luxfi/dsc/pkg/dsc"
)

// NATSPublisher publishes engine events on "<prefix>.<event type>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger log.Logger
}

// NewNATSPublisher connects to a NATS server. An empty url uses the
// default local endpoint.
func NewNATSPublisher(url, prefix string, logger log.Logger) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if prefix == "" {
		prefix = "dsc"
	}
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	logger.Info("connected to NATS", "url", url, "prefix", prefix)
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Publish implements dsc.Publisher.
func (p *NATSPublisher) Publish(ev dsc.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.nc.Publish(fmt.Sprintf("%s.%s", p.prefix, ev.Type), data)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed", "error", err)
	}
}
