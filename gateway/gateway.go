// CLAUDE:SUMMARY Thin reverse proxy relaying /connectors/* calls to the backend API, JSON in/out, 500 envelope on local failure.
// Package gateway forwards connector management requests from the console
// to the backend API. The console never talks to the backend origin
// directly; the gateway rewrites the path, issues a single outbound call,
// and relays the backend's status code and JSON body verbatim.
//
// Only *local* failures — building the request, the transport itself, or
// a backend body that is not valid JSON — are converted into the fixed
// failure envelope {"success":false,"error":"..."} with status 500. A
// backend that answers 404 stays a 404. Note the non-JSON-body case: a
// backend 200 with an HTML error page still becomes a 500 envelope, which
// loses the backend's status. That imprecision is kept on purpose to stay
// wire-compatible with the previous console.
//
// No retries, no circuit breaking, no outbound timeout: one inbound
// request maps to at most one outbound attempt, and an unresponsive
// backend stalls only that request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// PathPrefix is the route namespace the gateway owns, on both the inbound
// and the outbound side.
const PathPrefix = "/connectors"

// maxBodyBytes caps how much of a backend response is read. Connector
// payloads are small JSON documents; anything bigger is misbehaviour.
const maxBodyBytes = 1 << 20

// Gateway relays connector requests to the backend origin.
// It is stateless: every inbound request is handled independently.
type Gateway struct {
	origin string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithHTTPClient replaces the outbound HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New creates a Gateway forwarding to the given backend origin,
// e.g. "http://localhost:8000". A trailing slash on the origin is
// tolerated and stripped.
func New(origin string, opts ...Option) *Gateway {
	g := &Gateway{
		origin: strings.TrimRight(origin, "/"),
		logger: slog.Default(),
		// No Timeout: forwarding is single-attempt and best-effort; the
		// backend is trusted to answer or the caller to hang with it.
		client: &http.Client{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Mount registers the gateway's verb handlers on a chi router. The
// wildcard captures arbitrary-depth connector paths such as
// "slack/status" or "whatsapp/connect".
func (g *Gateway) Mount(r chi.Router) {
	pattern := PathPrefix + "/*"
	r.Get(pattern, g.handle)
	r.Post(pattern, g.handle)
	r.Delete(pattern, g.handle)
}

// failureEnvelope is the fixed shape returned for local failures.
type failureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handle services one inbound request regardless of verb.
func (g *Gateway) handle(w http.ResponseWriter, r *http.Request) {
	rest := chi.URLParam(r, "*")

	var body []byte
	if r.Method == http.MethodPost && r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			// Unreadable inbound body: forward without one rather than
			// failing the whole request.
			g.logger.Warn("gateway: read inbound body", "error", err)
		} else {
			body = b
		}
	}

	status, payload, err := g.forward(r.Context(), r.Method, rest, r.URL.RawQuery, body)
	if err != nil {
		g.logger.Error("gateway: forward failed",
			"method", r.Method, "path", rest, "error", err)
		writeJSON(w, http.StatusInternalServerError, failureEnvelope{Error: err.Error()})
		return
	}
	writeJSON(w, status, payload)
}

// forward issues the single outbound call and parses the response. It is
// the one code path shared by GET, POST and DELETE; only the method and
// the optional body vary.
func (g *Gateway) forward(ctx context.Context, method, rest, rawQuery string, body []byte) (int, json.RawMessage, error) {
	url := BuildURL(g.origin, rest, rawQuery)

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Always fetch fresh: connector state changes out of band and a
	// cached answer would show stale connection status.
	req.Header.Set("Cache-Control", "no-store")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read backend response: %w", err)
	}

	if !json.Valid(data) {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return 0, nil, fmt.Errorf("backend returned non-JSON body (status %d): %s", resp.StatusCode, preview)
	}
	return resp.StatusCode, json.RawMessage(data), nil
}

// BuildURL constructs the outbound URL: origin + PathPrefix + "/" + rest,
// with the raw query appended when non-empty. The rest is the
// already-encoded wildcard remainder, so no re-encoding happens here.
func BuildURL(origin, rest, rawQuery string) string {
	url := strings.TrimRight(origin, "/") + PathPrefix + "/" + strings.TrimLeft(rest, "/")
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	return url
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
