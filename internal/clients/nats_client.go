package clients

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes private-send stage events
type NATSClient struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
	logger        *logrus.Logger
}

// NewNATSClient CreateNATS client
func NewNATSClient(url, subjectPrefix string, timeout time.Duration, logger *logrus.Logger) (*NATSClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	logger.Infof("🔌 Using NATS timeout: %v", timeout)

	conn, err := nats.Connect(url,
		nats.Name("privatesend-backend"),
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warnf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("✅ NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{
		conn:          conn,
		js:            js,
		streamName:    strings.ToUpper(subjectPrefix),
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}

	// Without a stream the events still go out over core NATS
	if err := client.ensureStream(); err != nil {
		logger.Warnf("⚠️ JetStream stream unavailable, publishing over core NATS: %v", err)
		client.js = nil
	}

	return client, nil
}

// ensureStream JetStream stream exists
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		c.logger.Infof("Stream %s already exists", c.streamName)
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{c.subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	c.logger.Infof("Stream %s created", c.streamName)
	return nil
}

// SendEventSubject <prefix>.<stage>.<request_id>
func SendEventSubject(prefix string, event *models.StageEvent) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.Stage, event.RequestID)
}

// PublishSendEvent publish a stage transition
func (c *NATSClient) PublishSendEvent(event *models.StageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stage event: %w", err)
	}

	subject := SendEventSubject(c.subjectPrefix, event)
	if c.js != nil {
		_, err = c.js.Publish(subject, data)
	} else {
		err = c.conn.Publish(subject, data)
	}
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(string(event.Stage)).Inc()
		return fmt.Errorf("failed to publish stage event: %w", err)
	}

	metrics.NATSMessagesPublished.WithLabelValues(string(event.Stage)).Inc()
	c.logger.Debugf("📨 [NATS] Published stage event: %s", subject)
	return nil
}

// Close closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		metrics.NATSConnectionStatus.Set(0)
	}
}
