package daemon

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/pipeline"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := &appcfg.Config{
		Source: appcfg.Repository{URL: "https://example.invalid/widget.git", Name: "widget", Branch: "main"},
		Site:   appcfg.SiteConfig{Path: t.TempDir()},
	}
	d, err := New(cfg, "")
	require.NoError(t, err)
	return d
}

func sign256(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	secret := "hunter2"

	assert.True(t, validateSignature(payload, sign256(payload, secret), secret))
	assert.False(t, validateSignature(payload, sign256(payload, "wrong"), secret))
	assert.False(t, validateSignature(payload, "", secret))
	assert.False(t, validateSignature([]byte("tampered"), sign256(payload, secret), secret))
}

func TestWebhookTriggersRun(t *testing.T) {
	d := testDaemon(t)
	ws := NewWebhookServer("127.0.0.1:0", "hunter2", d)

	payload := []byte(`{"ref":"refs/heads/main","after":"deadbeef"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign256(payload, "hunter2"))
	rr := httptest.NewRecorder()
	ws.server.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	select {
	case kind := <-d.trigger:
		assert.Equal(t, TriggerWebhook, kind)
	default:
		t.Fatal("expected a pending trigger")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	d := testDaemon(t)
	ws := NewWebhookServer("127.0.0.1:0", "hunter2", d)

	payload := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign256(payload, "wrong"))
	rr := httptest.NewRecorder()
	ws.server.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, d.trigger)
}

func TestWebhookIgnoresOtherBranch(t *testing.T) {
	d := testDaemon(t)
	ws := NewWebhookServer("127.0.0.1:0", "", d)

	payload := []byte(`{"ref":"refs/heads/feature-x"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	ws.server.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, d.trigger)
}

func TestTriggerCoalesces(t *testing.T) {
	d := testDaemon(t)
	d.Trigger(TriggerSchedule)
	d.Trigger(TriggerWebhook)
	d.Trigger(TriggerWebhook)

	assert.Len(t, d.trigger, 1)
	assert.Equal(t, TriggerSchedule, <-d.trigger)
	assert.Empty(t, d.trigger)
}

func TestReloadConfigSwapsSnapshot(t *testing.T) {
	d := testDaemon(t)
	next := &appcfg.Config{
		Source: appcfg.Repository{URL: "https://example.invalid/other.git", Name: "other", Branch: "main"},
		Site:   appcfg.SiteConfig{Path: t.TempDir()},
	}
	require.NoError(t, d.ReloadConfig(context.Background(), next))
	assert.Equal(t, "other", d.Config().Source.Name)
}

func TestRunOnceSurvivesPipelineFailure(t *testing.T) {
	d := testDaemon(t)
	calls := 0
	d.run = func(context.Context, *appcfg.Config) (*pipeline.Report, error) {
		calls++
		return nil, assert.AnError
	}
	d.runOnce(context.Background(), TriggerStartup)
	assert.Equal(t, 1, calls)
}
