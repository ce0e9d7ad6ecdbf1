package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	sigHeader = "X-Bridge-Signature" // sha256=<hex>
	tsHeader  = "X-Bridge-Timestamp" // unix seconds
)

// HTTPReceiver delivers a dispatch payload as a signed JSON POST. It is the
// generic adapter for downstream systems that accept webhooks; richer
// ERP/3PL/marketplace clients implement Receiver themselves.
type HTTPReceiver struct {
	name   string
	url    string
	secret string
	client *http.Client
}

// NewHTTPReceiver creates an HTTP receiver adapter. A nil client gets a
// bounded-timeout default.
func NewHTTPReceiver(name, url, secret string, client *http.Client) *HTTPReceiver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPReceiver{name: name, url: url, secret: secret, client: client}
}

func (r *HTTPReceiver) Name() string { return r.name }

// Send posts the payload. Any internal error resolves to Success:false;
// Send never returns an error and never panics.
func (r *HTTPReceiver) Send(ctx context.Context, p Payload) Result {
	body, err := json.Marshal(p)
	if err != nil {
		return r.failed(fmt.Sprintf("marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return r.failed(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	// Sign: HMAC-SHA256 over body||timestamp
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(tsHeader, ts)
	if r.secret != "" {
		mac := hmac.New(sha256.New, []byte(r.secret))
		mac.Write(body)
		mac.Write([]byte(ts))
		req.Header.Set(sigHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	if p.TraceID != "" {
		req.Header.Set("X-Trace-Id", p.TraceID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return r.failed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return r.failed(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	return Result{Receiver: r.name, Success: true, Timestamp: time.Now().UTC()}
}

func (r *HTTPReceiver) failed(msg string) Result {
	return Result{Receiver: r.name, Success: false, Timestamp: time.Now().UTC(), Err: msg}
}
