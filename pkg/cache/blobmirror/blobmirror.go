// Package blobmirror optionally mirrors enrichment payloads to an S3- or
// MinIO-compatible object store, so a cold cache database can still be
// repopulated without re-querying the enrichment sources.
package blobmirror

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

const s3NoSuchKey = "NoSuchKey"

// blake3MetaKey names the user-metadata header carrying the payload's
// BLAKE3 digest, used to detect corruption introduced in transit to or
// from the object store (the sha256 in the key itself identifies the
// ROM content, not this payload's bytes).
const blake3MetaKey = "X-Amz-Meta-Blake3"

var (
	// ErrBucketRequired is returned if the bucket name is missing.
	ErrBucketRequired = errors.New("blobmirror: bucket name is required")

	// ErrEndpointRequired is returned if the endpoint is missing.
	ErrEndpointRequired = errors.New("blobmirror: endpoint is required")

	// ErrAccessKeyIDRequired is returned if the access key ID is missing.
	ErrAccessKeyIDRequired = errors.New("blobmirror: access key ID is required")

	// ErrSecretAccessKeyRequired is returned if the secret access key is missing.
	ErrSecretAccessKeyRequired = errors.New("blobmirror: secret access key is required")

	// ErrInvalidEndpointScheme is returned if the endpoint scheme is missing or invalid.
	ErrInvalidEndpointScheme = errors.New("blobmirror: endpoint must include scheme (http:// or https://)")

	// ErrBucketNotFound is returned if the configured bucket does not exist.
	ErrBucketNotFound = errors.New("blobmirror: bucket not found")

	// ErrNotFound is returned when a requested object has no mirror entry.
	ErrNotFound = errors.New("blobmirror: object not found")

	// ErrIntegrity is returned when a fetched payload's BLAKE3 digest does
	// not match the one recorded at Put time.
	ErrIntegrity = errors.New("blobmirror: payload failed integrity check")
)

// Config holds the S3/MinIO connection details for the mirror.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	Prefix          string
}

// ValidateConfig checks that cfg has everything required to dial a store.
func ValidateConfig(cfg Config) error {
	if cfg.Bucket == "" {
		return ErrBucketRequired
	}

	if cfg.Endpoint == "" {
		return ErrEndpointRequired
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("blobmirror: invalid endpoint URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInvalidEndpointScheme, cfg.Endpoint)
	}

	if cfg.AccessKeyID == "" {
		return ErrAccessKeyIDRequired
	}

	if cfg.SecretAccessKey == "" {
		return ErrSecretAccessKeyRequired
	}

	return nil
}

// Mirror is a thin wrapper around a minio.Client scoped to one bucket and
// key prefix, storing already-compressed enrichment payloads.
type Mirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// New dials the store and verifies the configured bucket exists.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	endpoint, useSSL := endpointHostAndScheme(cfg.Endpoint)

	bucketLookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		bucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       useSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("blobmirror: creating MinIO client: %w", err)
	}

	if err := checkBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, err
	}

	return &Mirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put mirrors a compressed enrichment payload for (sha256, source).
func (m *Mirror) Put(ctx context.Context, sha256, source string, payload []byte) error {
	key := m.objectKey(sha256, source)

	sum := blake3.Sum256(payload)

	_, err := m.client.PutObject(
		ctx,
		m.bucket,
		key,
		bytes.NewReader(payload),
		int64(len(payload)),
		minio.PutObjectOptions{
			ContentType:  "application/zstd",
			UserMetadata: map[string]string{blake3MetaKey: hex.EncodeToString(sum[:])},
		},
	)
	if err != nil {
		return fmt.Errorf("blobmirror: putting %q: %w", key, err)
	}

	return nil
}

// Get fetches a mirrored payload. ok is false (with a nil error) when the
// object doesn't exist.
func (m *Mirror) Get(ctx context.Context, sha256, source string) (payload []byte, ok bool, err error) {
	key := m.objectKey(sha256, source)

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("blobmirror: getting %q: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == s3NoSuchKey {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("blobmirror: stat %q: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, fmt.Errorf("blobmirror: reading %q: %w", key, err)
	}

	if want := info.UserMetadata[blake3MetaKey]; want != "" {
		sum := blake3.Sum256(data)
		if hex.EncodeToString(sum[:]) != want {
			return nil, false, fmt.Errorf("%w: %s", ErrIntegrity, key)
		}
	}

	return data, true, nil
}

// objectKey shards by the first two hex characters of sha256, mirroring
// the narInfoPath/narPath sharded-path convention this was adapted from.
func (m *Mirror) objectKey(sha256, source string) string {
	key := fmt.Sprintf("enrichment/%s/%s/%s.json.zst", sha256[:2], sha256, source)
	if m.prefix != "" {
		key = m.prefix + "/" + key
	}

	return key
}

func endpointHostAndScheme(endpoint string) (host string, useSSL bool) {
	u, _ := url.Parse(endpoint)

	return u.Host, u.Scheme == "https"
}

func checkBucket(ctx context.Context, client *minio.Client, bucket string) error {
	log := zerolog.Ctx(ctx)

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Msg("error checking bucket existence")

		return fmt.Errorf("blobmirror: checking bucket existence: %w", err)
	}

	if !exists {
		log.Error().Str("bucket", bucket).Msg("bucket does not exist")

		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	return nil
}
