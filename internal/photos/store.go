// Package photos stores price-tag photos and reads prices off them.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/mastermarket/mastermarket/internal/shared"
)

// MaxUploadBytes caps a single photo.
const MaxUploadBytes = 5 << 20

const thumbnailWidth = 200

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ErrUnsupportedType rejects uploads that are not images.
var ErrUnsupportedType = fmt.Errorf("photos: only image files are allowed: %w", shared.ErrInvalidArgument)

// Uploader writes an object to a bucket.
type Uploader interface {
	Write(ctx context.Context, object, contentType string, data []byte) error
}

// Uploaded describes a stored photo.
type Uploaded struct {
	URL          string `json:"photo_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Store uploads photos under unique keys with a bounded timeout.
type Store struct {
	uploader Uploader
	baseURL  string
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// NewStore constructs Store. Object URLs are baseURL joined with the key.
func NewStore(uploader Uploader, baseURL string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		uploader: uploader,
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Upload stores data and a thumbnail. Storage failures surface as
// ErrUpstreamUnavailable.
func (s *Store) Upload(ctx context.Context, data []byte) (Uploaded, error) {
	if s == nil || s.uploader == nil {
		return Uploaded{}, fmt.Errorf("photos: storage not configured: %w", shared.ErrUpstreamUnavailable)
	}
	if len(data) == 0 {
		return Uploaded{}, fmt.Errorf("photos: empty upload: %w", shared.ErrInvalidArgument)
	}
	if len(data) > MaxUploadBytes {
		return Uploaded{}, fmt.Errorf("photos: file exceeds %d bytes: %w", MaxUploadBytes, shared.ErrInvalidArgument)
	}
	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Uploaded{}, ErrUnsupportedType
	}
	key := path.Join("price-photos", s.now().UTC().Format("2006/01"), s.newID()+ext)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.uploader.Write(ctx, key, contentType, data); err != nil {
		return Uploaded{}, fmt.Errorf("photos: upload %s: %v: %w", key, err, shared.ErrUpstreamUnavailable)
	}
	out := Uploaded{URL: s.objectURL(key)}

	thumb, err := thumbnail(data)
	if err != nil {
		return out, nil
	}
	thumbKey := path.Join(path.Dir(key), "thumbnails", strings.TrimSuffix(path.Base(key), ext)+".jpg")
	if err := s.uploader.Write(ctx, thumbKey, "image/jpeg", thumb); err == nil {
		out.ThumbnailURL = s.objectURL(thumbKey)
	}
	return out, nil
}

func (s *Store) objectURL(key string) string {
	return s.baseURL + "/" + key
}

func thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos), imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GCSUploader writes objects to a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSClient builds a storage client from credentials JSON, or from
// application default credentials when credentialsJSON is empty.
func NewGCSClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	if strings.TrimSpace(credentialsJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	return storage.NewClient(ctx)
}

// NewGCSUploader constructs an uploader for bucket.
func NewGCSUploader(client *storage.Client, bucket string) (*GCSUploader, error) {
	if client == nil || bucket == "" {
		return nil, errors.New("photos: gcs client and bucket required")
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Write uploads data as object.
func (u *GCSUploader) Write(ctx context.Context, object, contentType string, data []byte) error {
	wc := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}
