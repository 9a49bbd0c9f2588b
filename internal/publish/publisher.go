package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docship/internal/artifact"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/retry"
)

// Publisher drives the upload-deploy-wait sequence with retry on transient
// failures of the upload and create steps.
type Publisher struct {
	client *Client
	policy retry.Policy
}

// NewPublisher wraps a client with a retry policy.
func NewPublisher(client *Client, policy retry.Policy) *Publisher {
	return &Publisher{client: client, policy: policy}
}

// Publish uploads the artifact, creates a deployment for it, and waits for a
// terminal state. Returns the final deployment.
func (p *Publisher) Publish(ctx context.Context, info artifact.Info, environment, commit string) (*Deployment, error) {
	var art *Artifact
	err := p.withRetry(ctx, "upload", func() error {
		var uerr error
		art, uerr = p.client.UploadArtifact(ctx, info)
		return uerr
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Artifact uploaded", slog.String("artifact_id", art.ID), slog.Int64("bytes", art.Size))

	var dep *Deployment
	err = p.withRetry(ctx, "deploy", func() error {
		var derr error
		dep, derr = p.client.CreateDeployment(ctx, DeploymentRequest{
			ArtifactID:  art.ID,
			Environment: environment,
			Commit:      commit,
		})
		return derr
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Deployment created", logfields.DeploymentID(dep.ID), slog.String("environment", environment))

	final, err := p.client.WaitActive(ctx, dep.ID)
	if err != nil {
		return final, err
	}
	slog.Info("Deployment active", logfields.DeploymentID(final.ID), logfields.URL(final.URL))
	return final, nil
}

func (p *Publisher) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying publish operation", slog.String("operation", op), slog.Int("attempt", attempt))
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == p.policy.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.policy.Delay(attempt + 1)):
		}
	}
	return fmt.Errorf("publish %s failed after retries: %w", op, lastErr)
}
