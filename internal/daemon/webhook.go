package daemon

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- SHA-1 kept for legacy Gitea/Forgejo webhook signatures
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// pushPayload is the subset of a forge push event the daemon cares about.
type pushPayload struct {
	Ref   string `json:"ref"`
	After string `json:"after"`
}

// WebhookServer accepts push notifications and triggers rebuilds.
type WebhookServer struct {
	server *http.Server
	secret string
	daemon *Daemon
}

// NewWebhookServer creates the webhook listener. An empty secret disables
// signature validation (only sensible behind a trusted proxy).
func NewWebhookServer(addr, secret string, d *Daemon) *WebhookServer {
	ws := &WebhookServer{secret: secret, daemon: d}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", ws.handlePush)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ws.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return ws
}

// ListenAndServe blocks serving webhook requests.
func (ws *WebhookServer) ListenAndServe() {
	slog.Info("Webhook listening", slog.String("addr", ws.server.Addr))
	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Webhook server failed", logfields.Error(err))
	}
}

// Shutdown stops the webhook server.
func (ws *WebhookServer) Shutdown(ctx context.Context) error { return ws.server.Shutdown(ctx) }

func (ws *WebhookServer) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if ws.secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Hub-Signature")
		}
		if !validateSignature(body, sig, ws.secret) {
			slog.Warn("Webhook signature rejected", slog.String("remote", r.RemoteAddr))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	branch := ws.daemon.Config().Source.Branch
	if payload.Ref != "" && payload.Ref != "refs/heads/"+branch {
		slog.Debug("Ignoring push for other ref", slog.String("ref", payload.Ref))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	slog.Info("Push received", slog.String("ref", payload.Ref), logfields.Commit(payload.After))
	ws.daemon.Trigger(TriggerWebhook)
	w.WriteHeader(http.StatusAccepted)
}

// validateSignature checks an HMAC webhook signature. GitHub-style
// sha256=<hex> is preferred; sha1=<hex> and bare SHA-1 hex are accepted for
// legacy forges.
func validateSignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	if expected, ok := strings.CutPrefix(signature, "sha256="); ok {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	if expected, ok := strings.CutPrefix(signature, "sha1="); ok {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	calc := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(calc))
}
