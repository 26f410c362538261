package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/nats-io/nats.go"
)

const natsKeyHeader = "Bookshelf-Key"

// NATSConfig конфигурация NATS JetStream адаптера
type NATSConfig struct {
	URL               string
	Stream            string
	SubjectPrefix     string // subject = SubjectPrefix + topic
	DuplicateWindow   time.Duration
	AckWait           time.Duration
	MaxWait           time.Duration
	BatchSize         int
	ConnectionTimeout time.Duration
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if c.Stream == "" {
		return fmt.Errorf("stream cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		Stream:            "BOOKSHELF",
		SubjectPrefix:     "bookshelf.",
		DuplicateWindow:   2 * time.Minute,
		AckWait:           30 * time.Second,
		MaxWait:           time.Second,
		BatchSize:         100,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSClient соединение с JetStream и гарантированный stream
type NATSClient struct {
	config NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext
}

// NewNATSClient подключается к серверу и создает stream, если его нет
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid nats config")
	}

	conn, err := nats.Connect(config.URL, nats.Timeout(config.ConnectionTimeout))
	if err != nil {
		return nil, core.Wrap(err, core.ErrTransport, "failed to connect to nats")
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, core.Wrap(err, core.ErrTransport, "failed to create jetstream context")
	}

	client := &NATSClient{config: config, conn: conn, js: js}
	if err := client.ensureStream(); err != nil {
		conn.Close()
		return nil, core.Wrap(err, core.ErrTransport, "failed to ensure jetstream stream")
	}
	return client, nil
}

func (c *NATSClient) ensureStream() error {
	_, err := c.js.StreamInfo(c.config.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:       c.config.Stream,
		Subjects:   []string{c.config.SubjectPrefix + ">"},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Duplicates: c.config.DuplicateWindow,
	})
	return err
}

func (c *NATSClient) subject(topic string) string {
	return c.config.SubjectPrefix + topic
}

// Close закрывает соединение
func (c *NATSClient) Close() error {
	c.conn.Close()
	return nil
}

// NATSAppender запись в JetStream. Заголовок event-id передается как
// Nats-Msg-Id, поэтому повтор Append в окне дедупликации не создает дублей.
type NATSAppender struct {
	client *NATSClient
}

// NewNATSAppender создает NATSAppender
func NewNATSAppender(client *NATSClient) *NATSAppender {
	return &NATSAppender{client: client}
}

// Append публикует записи по одной, дожидаясь PubAck каждой
func (a *NATSAppender) Append(ctx context.Context, topic string, records ...Record) error {
	subject := a.client.subject(topic)
	for i, r := range records {
		msg := nats.NewMsg(subject)
		msg.Data = r.Value
		for k, v := range r.Headers {
			msg.Header.Set(k, v)
		}
		if len(r.Key) > 0 {
			msg.Header.Set(natsKeyHeader, string(r.Key))
		}
		if id := r.Header(HeaderEventID); id != "" {
			msg.Header.Set(nats.MsgIdHdr, id)
		}

		if _, err := a.client.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return core.Wrap(err, core.ErrTransport, fmt.Sprintf("failed to publish record %d/%d to %s", i+1, len(records), subject))
		}
	}
	return nil
}

// Close закрывает соединение
func (a *NATSAppender) Close() error {
	return a.client.Close()
}

// NATSReader чтение через durable pull consumer. Consumer создается явно и
// привязывается через Bind, чтобы Close не удалял его на сервере.
type NATSReader struct {
	client *NATSClient
	topic  string
	sub    *nats.Subscription
}

// NewNATSReader создает (или переиспользует) durable consumer группы
func NewNATSReader(client *NATSClient, topic, group string) (*NATSReader, error) {
	if topic == "" || group == "" {
		return nil, core.NewError(core.ErrInvalidConfig, "nats reader requires topic and group")
	}

	subject := client.subject(topic)
	stream := client.config.Stream

	_, err := client.js.ConsumerInfo(stream, group)
	if errors.Is(err, nats.ErrConsumerNotFound) {
		_, err = client.js.AddConsumer(stream, &nats.ConsumerConfig{
			Durable:       group,
			AckPolicy:     nats.AckExplicitPolicy,
			DeliverPolicy: nats.DeliverAllPolicy,
			AckWait:       client.config.AckWait,
			FilterSubject: subject,
		})
	}
	if err != nil {
		return nil, core.Wrap(err, core.ErrTransport, "failed to ensure jetstream consumer")
	}

	sub, err := client.js.PullSubscribe(subject, group, nats.Bind(stream, group))
	if err != nil {
		return nil, core.Wrap(err, core.ErrTransport, "failed to subscribe to jetstream consumer")
	}

	return &NATSReader{client: client, topic: topic, sub: sub}, nil
}

// Poll забирает до BatchSize сообщений, ожидая не дольше MaxWait
func (r *NATSReader) Poll(ctx context.Context) ([]Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.client.config.MaxWait)
	defer cancel()

	msgs, err := r.sub.Fetch(r.client.config.BatchSize, nats.Context(fetchCtx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, core.Wrap(err, core.ErrTransport, "failed to fetch jetstream messages")
	}

	batch := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		batch = append(batch, r.fromMsg(msg))
	}
	return batch, nil
}

func (r *NATSReader) fromMsg(msg *nats.Msg) Record {
	rec := Record{
		Topic: r.topic,
		Value: msg.Data,
		raw:   msg,
	}
	if meta, err := msg.Metadata(); err == nil {
		rec.Offset = int64(meta.Sequence.Stream)
	}
	for k := range msg.Header {
		switch k {
		case natsKeyHeader:
			rec.Key = []byte(msg.Header.Get(k))
		case nats.MsgIdHdr:
		default:
			if rec.Headers == nil {
				rec.Headers = make(map[string]string)
			}
			rec.Headers[k] = msg.Header.Get(k)
		}
	}
	return rec
}

// Commit подтверждает сообщения и ждет ответа сервера
func (r *NATSReader) Commit(ctx context.Context, records []Record) error {
	for _, rec := range records {
		msg, ok := rec.raw.(*nats.Msg)
		if !ok {
			return core.NewError(core.ErrOffsetCommit, fmt.Sprintf("record %s was not delivered by jetstream", rec.Ref()))
		}
		if err := msg.AckSync(nats.Context(ctx)); err != nil {
			return core.Wrap(err, core.ErrOffsetCommit, fmt.Sprintf("failed to ack %s", rec.Ref()))
		}
	}
	return nil
}

// Close снимает подписку (consumer на сервере сохраняется) и закрывает соединение
func (r *NATSReader) Close() error {
	_ = r.sub.Unsubscribe()
	return r.client.Close()
}
