// Package natsbroker publishes JSON messages over NATS.
package natsbroker

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Broker is a NATS connection that speaks JSON.
type Broker struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// New connects to the NATS server at url.
func New(url string, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("offsetup"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Broker{conn: nc, logger: logger}, nil
}

// Publish sends msg as JSON and waits for the server to acknowledge it.
func (b *Broker) Publish(subject string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return err
	}
	return b.conn.Flush()
}

// Subscribe decodes every message on subject into a new T and hands it to
// handler. Messages that do not decode are logged and dropped.
func Subscribe[T any](b *Broker, subject string, handler func(T)) (*nats.Subscription, error) {
	return b.conn.Subscribe(subject, decoding(b.logger, handler))
}

func decoding[T any](logger *zap.Logger, handler func(T)) nats.MsgHandler {
	return func(m *nats.Msg) {
		var v T
		if err := json.Unmarshal(m.Data, &v); err != nil {
			logger.Warn("dropping undecodable message",
				zap.String("subject", m.Subject), zap.Int("bytes", len(m.Data)), zap.Error(err))
			return
		}
		handler(v)
	}
}

// Close drops the connection.
func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
