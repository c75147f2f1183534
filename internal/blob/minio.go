// Package blob stores the sheet document as a single object in an
// S3-compatible bucket.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sheettracker/api/internal/sheet"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Object    string
	UseSSL    bool
}

type ObjectPersister struct {
	client *minio.Client
	bucket string
	object string
}

func NewObjectPersister(cfg Config) (*ObjectPersister, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	object := cfg.Object
	if object == "" {
		object = "sheet.json"
	}
	return &ObjectPersister{client: client, bucket: cfg.Bucket, object: object}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (p *ObjectPersister) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.bucket, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable and exists.
func (p *ObjectPersister) Ping(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}
	return nil
}

func (p *ObjectPersister) Load(ctx context.Context) ([]byte, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, p.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, p.loadErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, p.loadErr(err)
	}
	return data, nil
}

func (p *ObjectPersister) Save(ctx context.Context, data []byte) error {
	_, err := p.client.PutObject(ctx, p.bucket, p.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", p.bucket, p.object, err)
	}
	return nil
}

func (p *ObjectPersister) loadErr(err error) error {
	if isNotFound(err) {
		return sheet.ErrNoState
	}
	return fmt.Errorf("get %s/%s: %w", p.bucket, p.object, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
