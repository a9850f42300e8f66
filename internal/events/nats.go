package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"facturio/internal/config"
	"facturio/internal/domain"
)

// NATSEmitter publishes terminal document transitions to NATS subjects
// <prefix>.completed and <prefix>.failed.
type NATSEmitter struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSEmitter connects to the configured NATS server.
func NewNATSEmitter(cfg config.EventsConfig) (*NATSEmitter, error) {
	conn, err := nats.Connect(
		cfg.NATSURL,
		nats.Name("facturio"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("events.NATSEmitter: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("events.NATSEmitter: reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSEmitter{
		conn:          conn,
		subjectPrefix: cfg.SubjectPrefix,
	}, nil
}

// documentEvent is the published payload. Raw text stays out of the event;
// consumers fetch the document if they need it.
type documentEvent struct {
	DocumentID       string                  `json:"document_id"`
	TenantID         string                  `json:"tenant_id"`
	State            domain.DocumentState    `json:"state"`
	DocumentType     domain.DocumentType     `json:"document_type,omitempty"`
	ExtractionSource domain.ExtractionSource `json:"extraction_source,omitempty"`
	ErrorKind        domain.ErrorKind        `json:"error_kind,omitempty"`
	ErrorReason      string                  `json:"error_reason,omitempty"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

func (e *NATSEmitter) DocumentCompleted(ctx context.Context, doc *domain.Document) error {
	return e.publish(e.subjectPrefix+".completed", doc)
}

func (e *NATSEmitter) DocumentFailed(ctx context.Context, doc *domain.Document) error {
	return e.publish(e.subjectPrefix+".failed", doc)
}

func (e *NATSEmitter) publish(subject string, doc *domain.Document) error {
	payload, err := json.Marshal(documentEvent{
		DocumentID:       doc.ID.String(),
		TenantID:         doc.TenantID.String(),
		State:            doc.State,
		DocumentType:     doc.DocumentType,
		ExtractionSource: doc.ExtractionSource,
		ErrorKind:        doc.ErrorKind,
		ErrorReason:      doc.ErrorReason,
		OccurredAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := e.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains the connection.
func (e *NATSEmitter) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}
