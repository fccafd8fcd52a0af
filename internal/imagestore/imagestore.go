// Package imagestore copies generated images into S3-compatible storage so
// links keep working after the provider's temporary URL expires.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/multichat/chatproxy/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	maxImageBytes = 32 << 20
	presignExpiry = 7 * 24 * time.Hour
	fetchTimeout  = 60 * time.Second
)

// objectStore is the subset of *minio.Client used here.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Rehoster downloads an image and stores it under a random key.
type Rehoster struct {
	store      objectStore
	bucket     string
	publicBase string
	httpClient *http.Client
	now        func() time.Time
}

// New connects to the configured endpoint. It returns nil, nil when
// re-hosting is not configured.
func New(cfg config.ImageStoreConfig) (*Rehoster, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: create client: %w", err)
	}
	return newRehoster(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newRehoster(store objectStore, bucket, publicBase string) *Rehoster {
	return &Rehoster{
		store:      store,
		bucket:     bucket,
		publicBase: strings.TrimSuffix(publicBase, "/"),
		httpClient: &http.Client{Timeout: fetchTimeout},
		now:        time.Now,
	}
}

// Rehost fetches sourceURL and returns the stored copy's URL.
func (r *Rehoster) Rehost(ctx context.Context, sourceURL string) (string, error) {
	if r == nil {
		return sourceURL, nil
	}
	data, contentType, err := r.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := r.objectKey(contentType)
	_, err = r.store.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("imagestore: put %s: %w", key, err)
	}
	log.WithFields(log.Fields{"bucket": r.bucket, "key": key, "bytes": len(data)}).Debug("image re-hosted")

	if r.publicBase != "" {
		return r.publicBase + "/" + key, nil
	}
	signed, err := r.store.PresignedGetObject(ctx, r.bucket, key, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("imagestore: presign %s: %w", key, err)
	}
	return signed.String(), nil
}

func (r *Rehoster) fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagestore: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagestore: fetch: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("imagestore: close response body error: %v", errClose)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagestore: fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagestore: read: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", errors.New("imagestore: image exceeds size limit")
	}
	if len(data) == 0 {
		return nil, "", errors.New("imagestore: empty image")
	}
	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, errParse := mime.ParseMediaType(contentType); errParse != nil || !strings.HasPrefix(mediaType, "image/") {
		contentType = http.DetectContentType(data)
	} else {
		contentType = mediaType
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("imagestore: unexpected content type %q", contentType)
	}
	return data, contentType, nil
}

func (r *Rehoster) objectKey(contentType string) string {
	ext := ".png"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	case "image/gif":
		ext = ".gif"
	}
	return path.Join("images", r.now().UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
