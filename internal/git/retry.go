package git

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/retry"
)

const (
	transientTypeRateLimit      = "rate_limit"
	transientTypeNetworkTimeout = "network_timeout"
)

// withRetry wraps an operation with retry logic based on build configuration.
func (c *Client) withRetry(op, repoName string, fn func() (CheckoutResult, error)) (CheckoutResult, error) {
	if c.buildCfg == nil || c.buildCfg.MaxRetries <= 0 {
		return fn()
	}
	pol := retry.FromBuildConfig(c.buildCfg)

	// Adaptive delay multipliers keyed by transient error classification.
	const (
		multRateLimit      = 3.0
		multNetworkTimeout = 1.0
	)
	var lastErr error
	for attempt := 0; attempt <= c.buildCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying git operation", slog.String("operation", op),
				logfields.Repository(repoName), slog.Int("attempt", attempt))
		}
		c.inRetry = true
		res, err := fn()
		c.inRetry = false
		if err == nil {
			return res, nil
		}
		lastErr = err
		if isPermanentGitError(err) {
			slog.Error("permanent git error", slog.String("operation", op),
				logfields.Repository(repoName), logfields.Error(err))
			return CheckoutResult{}, err
		}
		if attempt == c.buildCfg.MaxRetries {
			break
		}
		delay := pol.Delay(attempt + 1)
		switch classifyTransientType(err) {
		case transientTypeRateLimit:
			delay = time.Duration(float64(delay) * multRateLimit)
		case transientTypeNetworkTimeout:
			delay = time.Duration(float64(delay) * multNetworkTimeout)
		}
		time.Sleep(delay)
	}
	return CheckoutResult{}, fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}

func isPermanentGitError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.As(err, new(*AuthError)),
		errors.As(err, new(*NotFoundError)),
		errors.As(err, new(*UnsupportedProtocolError)),
		errors.As(err, new(*RemoteDivergedError)):
		return true
	case errors.As(err, new(*RateLimitError)), errors.As(err, new(*NetworkTimeoutError)):
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return true
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no such remote") || strings.Contains(msg, "invalid reference") {
		return true
	}
	if strings.Contains(msg, "unsupported protocol") {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	return false
}

// IsPermanentGitError exposes the permanence classification.
var IsPermanentGitError = isPermanentGitError

// classifyTransientType returns a short string key for known transient typed errors; empty if unknown.
func classifyTransientType(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.As(err, new(*RateLimitError)):
		return transientTypeRateLimit
	case errors.As(err, new(*NetworkTimeoutError)):
		return transientTypeNetworkTimeout
	}
	return ""
}
