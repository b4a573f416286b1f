// Package aiproxy forwards metered AI requests to the configured upstream
// providers. Payloads are opaque: governance concerns (quota, recording)
// live in the middleware chain, not here.
package aiproxy

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/academia-platform/aigov/internal/api"
	"github.com/academia-platform/aigov/internal/config"
)

// Proxy relays request bodies to a provider endpoint and streams the
// response back unchanged.
type Proxy struct {
	client    *http.Client
	geminiURL string
	groqURL   string
}

func New(cfg config.UpstreamConfig) *Proxy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Proxy{
		client:    &http.Client{Timeout: timeout},
		geminiURL: cfg.GeminiURL,
		groqURL:   cfg.GroqURL,
	}
}

// Handler returns an http.HandlerFunc that forwards to the named provider.
func (p *Proxy) Handler(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := p.targetURL(provider)
		if target == "" {
			api.JSONErrorMessage(w, http.StatusServiceUnavailable, "provider not configured")
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, r.Body)
		if err != nil {
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			slog.Error("aiproxy: upstream request failed", "provider", provider, "error", err)
			api.JSONErrorMessage(w, http.StatusBadGateway, "upstream request failed")
			return
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			slog.Warn("aiproxy: copying upstream response", "provider", provider, "error", err)
		}
	}
}

func (p *Proxy) targetURL(provider string) string {
	switch provider {
	case "groq":
		return p.groqURL
	case "gemini":
		return p.geminiURL
	default:
		return ""
	}
}
