package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/pipeline"
)

// DeploymentEvent is published after every pipeline run.
type DeploymentEvent struct {
	RunID          string    `json:"run_id"`
	Outcome        string    `json:"outcome"`
	SourceHead     string    `json:"source_head,omitempty"`
	ArtifactDigest string    `json:"artifact_digest,omitempty"`
	DeploymentID   string    `json:"deployment_id,omitempty"`
	DeploymentURL  string    `json:"deployment_url,omitempty"`
	Published      bool      `json:"published"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventPublisher emits deployment events over NATS JetStream.
type EventPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewEventPublisher connects to NATS and ensures the event stream exists.
func NewEventPublisher(cfg *appcfg.NATSConfig) (*EventPublisher, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &EventPublisher{conn: conn, js: js, subject: cfg.Subject}

	if cfg.Stream != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			MaxAge:   30 * 24 * time.Hour,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ensure event stream: %w", err)
		}
	}

	slog.Info("Event publisher connected", "url", cfg.URL, "subject", cfg.Subject)
	return p, nil
}

// PublishRun emits the event for a finished run.
func (p *EventPublisher) PublishRun(ctx context.Context, report *pipeline.Report) error {
	event := DeploymentEvent{
		RunID:          report.RunID,
		Outcome:        string(report.Outcome()),
		SourceHead:     report.SourceHead,
		ArtifactDigest: report.ArtifactDigest,
		DeploymentID:   report.DeploymentID,
		DeploymentURL:  report.DeploymentURL,
		Published:      report.Published,
		Timestamp:      time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(pubCtx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	slog.Debug("Published deployment event", "run_id", event.RunID, "outcome", event.Outcome)
	return nil
}

// Close drains the NATS connection.
func (p *EventPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
