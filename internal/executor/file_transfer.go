package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// FileTransferType is the node type id this executor serves.
const FileTransferType = "file-transfer"

// ObjectStoreConfig locates the object store a FileTransfer talks to.
type ObjectStoreConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	DefaultBucket string
}

// FileTransfer uploads a node's input as an object. The node config names
// the target: object_key is required, bucket falls back to the default.
type FileTransfer struct {
	cfg ObjectStoreConfig

	clientOnce sync.Once
	client     *minio.Client
	clientErr  error
}

// NewFileTransfer creates the executor. The client is only dialed in
// production mode; emulation works without a reachable store.
func NewFileTransfer(cfg ObjectStoreConfig) *FileTransfer {
	return &FileTransfer{cfg: cfg}
}

// getClient builds the store client once. One FileTransfer instance is
// shared by concurrent node-run handlers, so first use must be safe to race.
func (f *FileTransfer) getClient() (*minio.Client, error) {
	f.clientOnce.Do(func() {
		f.client, f.clientErr = minio.New(f.cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(f.cfg.AccessKey, f.cfg.SecretKey, ""),
			Secure: f.cfg.UseSSL,
		})
	})
	return f.client, f.clientErr
}

func (f *FileTransfer) Execute(ctx context.Context, node *Node, input map[string]any, execCtx *Context) *Result {
	objectKey, ok := stringConfig(node, "object_key")
	if !ok {
		return ConfigError(node, "object_key")
	}
	bucket := optionalString(node, "bucket", f.cfg.DefaultBucket)
	if bucket == "" {
		return ConfigError(node, "bucket")
	}

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
			"bucket": bucket,
			"key":    objectKey,
			"size":   len(body),
			"etag":   fmt.Sprintf("emulated-%s", node.ID),
		})
	}

	ctx, span := tracing.StartSpan(ctx, "node.file_transfer",
		attribute.String("node_id", node.ID),
		attribute.String("bucket", bucket),
		attribute.String("key", objectKey),
	)
	defer span.End()

	client, err := f.getClient()
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: object store client: %v", node.ID, err),
			ErrKind: ErrKindConnection,
		}
	}

	info, err := client.PutObject(ctx, bucket, objectKey, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: upload %s/%s: %v", node.ID, bucket, objectKey, err),
			ErrKind: ErrKindExecution,
		}
	}

	return &Result{
		Success: true,
		Output: map[string]any{
			"bucket": info.Bucket,
			"key":    info.Key,
			"size":   info.Size,
			"etag":   info.ETag,
		},
	}
}
