package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// APICallType is the node type id this executor serves.
const APICallType = "api-call"

// APICall posts a node's input to an HTTP endpoint as JSON, optionally
// signed with HMAC-SHA256 over body||timestamp.
//
// Required config: url. Optional: method (default POST), secret.
type APICall struct {
	client *http.Client
}

// NewAPICall creates the executor. A nil client gets a bounded-timeout
// default.
func NewAPICall(client *http.Client) *APICall {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &APICall{client: client}
}

func (a *APICall) Execute(ctx context.Context, node *Node, input map[string]any, execCtx *Context) *Result {
	url, ok := stringConfig(node, "url")
	if !ok {
		return ConfigError(node, "url")
	}
	method := optionalString(node, "method", http.MethodPost)
	secret := optionalString(node, "secret", "")

	body, err := json.Marshal(input)
	if err != nil {
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: marshal input: %v", node.ID, err),
			ErrKind: ErrKindExecution,
		}
	}

	if execCtx != nil && execCtx.EmulationMode {
		return emulatedResult(map[string]any{
			"status": http.StatusOK,
			"url":    url,
			"method": method,
			"body":   fmt.Sprintf("emulated-%s", node.ID),
		})
	}

	ctx, span := tracing.StartSpan(ctx, "node.api_call",
		attribute.String("node_id", node.ID),
		attribute.String("url", url),
		attribute.String("method", method),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: build request: %v", node.ID, err),
			ErrKind: ErrKindConfiguration,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Bridge-Timestamp", ts)
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		mac.Write([]byte(ts))
		req.Header.Set("X-Bridge-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	if execCtx != nil && execCtx.TraceID != "" {
		req.Header.Set("X-Trace-Id", execCtx.TraceID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: %v", node.ID, err),
			ErrKind: ErrKindConnection,
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: unexpected status %d", node.ID, resp.StatusCode),
			ErrKind: ErrKindExecution,
			Output:  map[string]any{"status": resp.StatusCode, "body": string(respBody)},
		}
	}

	return &Result{
		Success: true,
		Output:  map[string]any{"status": resp.StatusCode, "body": string(respBody)},
	}
}
