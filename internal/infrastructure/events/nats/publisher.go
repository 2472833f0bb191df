// Package nats publishes document lifecycle events. Delivery is best
// effort: ingestion and deletion never fail because an event could not be
// published.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

type Publisher struct {
	conn    *nats.Conn
	subject string
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func New(url, subject string) (*Publisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("rag-chat"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

var _ ports.EventPublisher = (*Publisher)(nil)

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type ingestedEvent struct {
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

type deletedEvent struct {
	DocumentID string    `json:"document_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

func (p *Publisher) DocumentIngested(_ context.Context, doc domain.Document) error {
	return p.publish(p.subject+".ingested", ingestedEvent{
		DocumentID: doc.DocumentID,
		FileName:   doc.FileName,
		ChunkCount: doc.ChunkCount,
		IngestedAt: doc.IngestedAt,
	})
}

func (p *Publisher) DocumentDeleted(_ context.Context, documentID string) error {
	return p.publish(p.subject+".deleted", deletedEvent{
		DocumentID: documentID,
		DeletedAt:  time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	switch {
	case isTransient(err):
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	default:
		return fmt.Errorf("nats publish: %w", err)
	}
}

func isTransient(err error) bool {
	for _, transient := range []error{
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrDisconnected,
		nats.ErrReconnectBufExceeded,
	} {
		if errors.Is(err, transient) {
			return true
		}
	}
	return false
}
