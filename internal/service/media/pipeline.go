// Package media validates uploaded blobs, derives thumbnails and metadata and
// places everything in object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/service/storage"
	"socialhub-backend/pkg/constants"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

// sniffLen is how many leading bytes are inspected to detect the MIME type
const sniffLen = 3072

// Limits are the per-kind size ceilings in bytes
type Limits struct {
	Image int64
	Audio int64
	Video int64
}

// DefaultLimits returns the standard ceilings
func DefaultLimits() Limits {
	return Limits{
		Image: constants.MaxImageSize,
		Audio: constants.MaxAudioSize,
		Video: constants.MaxVideoSize,
	}
}

func (l Limits) forKind(kind domain.MessageKind) int64 {
	switch kind {
	case domain.MessageImage:
		return l.Image
	case domain.MessageAudio:
		return l.Audio
	case domain.MessageVideo:
		return l.Video
	}
	return 0
}

type kindRule struct {
	mimes      []string
	extensions []string
}

var rules = map[domain.MessageKind]kindRule{
	domain.MessageImage: {
		mimes:      []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
	},
	domain.MessageVideo: {
		mimes:      []string{"video/mp4", "video/quicktime", "video/webm", "video/3gpp", "video/x-matroska", "video/x-m4v"},
		extensions: []string{".mp4", ".mov", ".webm", ".3gp", ".mkv", ".m4v"},
	},
	domain.MessageAudio: {
		// Browser voice notes are recorded as webm containers
		mimes:      []string{"audio/mpeg", "audio/mp4", "audio/x-m4a", "audio/aac", "audio/ogg", "audio/wav", "audio/flac", "audio/amr", "video/webm"},
		extensions: []string{".mp3", ".m4a", ".aac", ".ogg", ".oga", ".opus", ".wav", ".flac", ".amr", ".webm"},
	},
}

// Pipeline is the media upload pipeline
type Pipeline struct {
	store  storage.ObjectStore
	limits Limits
	now    func() time.Time
}

// NewPipeline creates a pipeline writing to store
func NewPipeline(store storage.ObjectStore, limits Limits) *Pipeline {
	return &Pipeline{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
}

// UploadInput is one blob to place
type UploadInput struct {
	Kind     domain.MessageKind
	Filename string
	Size     int64 // -1 when unknown
	Body     io.Reader
}

func reject(reason string, err error) error {
	metrics.MediaRejectionsTotal.WithLabelValues(reason).Inc()
	return err
}

// Upload validates the blob against its declared kind and stores it.
// Every call produces fresh object keys.
func (p *Pipeline) Upload(ctx context.Context, in UploadInput) (*domain.MediaUpload, error) {
	rule, ok := rules[in.Kind]
	if !ok {
		return nil, reject("kind", fmt.Errorf("%w: message_type %q does not take a file", domain.ErrUnsupportedMedia, in.Kind))
	}
	limit := p.limits.forKind(in.Kind)
	if in.Size > limit {
		return nil, reject("size", fmt.Errorf("%w: %s files are limited to %d bytes", domain.ErrMediaTooLarge, in.Kind, limit))
	}

	ext := strings.ToLower(path.Ext(in.Filename))
	if ext != "" && !contains(rule.extensions, ext) {
		return nil, reject("extension", fmt.Errorf("%w: extension %s is not a valid %s file", domain.ErrUnsupportedMedia, ext, in.Kind))
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	header = header[:n]
	if n == 0 {
		return nil, reject("empty", fmt.Errorf("%w: file is empty", domain.ErrUnsupportedMedia))
	}

	mime := mimetype.Detect(header)
	if !matches(mime, rule.mimes) {
		return nil, reject("mime", fmt.Errorf("%w: detected %s, which is not a valid %s file", domain.ErrUnsupportedMedia, mime.String(), in.Kind))
	}
	if ext == "" {
		ext = mime.Extension()
	}

	key := p.objectKey(in.Kind, ext)
	contentType := mime.String()

	var upload *domain.MediaUpload
	if in.Kind == domain.MessageImage {
		upload, err = p.uploadImage(ctx, key, contentType, header, in.Body, limit)
	} else {
		upload, err = p.uploadStream(ctx, key, contentType, header, in, limit)
	}
	if err != nil {
		return nil, err
	}

	metrics.MediaUploadsTotal.WithLabelValues(string(in.Kind)).Inc()
	metrics.MediaUploadBytes.WithLabelValues(string(in.Kind)).Observe(float64(upload.Metadata.Bytes))
	return upload, nil
}

// CheckUploaded verifies that a blob uploaded earlier was accepted for kind.
// The recorded MIME type must be one the kind allows.
func CheckUploaded(kind domain.MessageKind, upload *domain.MediaUpload) error {
	rule, ok := rules[kind]
	if !ok {
		return fmt.Errorf("%w: message_type %q does not take a file", domain.ErrUnsupportedMedia, kind)
	}
	if upload == nil || upload.Metadata == nil || upload.Metadata.MIME == "" {
		return fmt.Errorf("%w: metadata.mime is required with media_url", domain.ErrUnsupportedMedia)
	}
	mimeType, _, _ := strings.Cut(upload.Metadata.MIME, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if !contains(rule.mimes, mimeType) {
		return fmt.Errorf("%w: %s is not a valid %s file", domain.ErrUnsupportedMedia, mimeType, kind)
	}
	return nil
}

// uploadImage buffers the image so its dimensions and thumbnail can be derived
func (p *Pipeline) uploadImage(ctx context.Context, key, contentType string, header []byte, rest io.Reader, limit int64) (*domain.MediaUpload, error) {
	var buf bytes.Buffer
	buf.Write(header)
	if _, err := io.Copy(&buf, io.LimitReader(rest, limit-int64(len(header))+1)); err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(buf.Len()) > limit {
		return nil, reject("size", fmt.Errorf("%w: image files are limited to %d bytes", domain.ErrMediaTooLarge, limit))
	}
	data := buf.Bytes()

	thumb, err := makeThumbnail(data, constants.ThumbnailMaxDimension)
	if err != nil {
		return nil, reject("decode", fmt.Errorf("%w: %v", domain.ErrUnsupportedMedia, err))
	}

	url, err := p.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	thumbKey := strings.TrimSuffix(key, path.Ext(key)) + "_thumb" + thumb.ext
	thumbURL, err := p.store.Put(ctx, thumbKey, bytes.NewReader(thumb.data), int64(len(thumb.data)), thumb.contentType)
	if err != nil {
		p.cleanup(key)
		return nil, fmt.Errorf("storing thumbnail: %w", err)
	}

	width, height := thumb.sourceWidth, thumb.sourceHeight
	return &domain.MediaUpload{
		URL:          url,
		ThumbnailURL: &thumbURL,
		Metadata: &domain.MediaMetadata{
			MIME:   contentType,
			Bytes:  int64(len(data)),
			Width:  &width,
			Height: &height,
		},
	}, nil
}

// uploadStream pipes audio and video straight to the store without buffering
func (p *Pipeline) uploadStream(ctx context.Context, key, contentType string, header []byte, in UploadInput, limit int64) (*domain.MediaUpload, error) {
	counter := &countingReader{r: io.LimitReader(in.Body, limit-int64(len(header))+1)}
	body := io.MultiReader(bytes.NewReader(header), counter)

	url, err := p.store.Put(ctx, key, body, in.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", in.Kind, err)
	}

	total := int64(len(header)) + counter.n
	if total > limit {
		p.cleanup(key)
		return nil, reject("size", fmt.Errorf("%w: %s files are limited to %d bytes", domain.ErrMediaTooLarge, in.Kind, limit))
	}

	return &domain.MediaUpload{
		URL: url,
		Metadata: &domain.MediaMetadata{
			MIME:  contentType,
			Bytes: total,
		},
	}, nil
}

func (p *Pipeline) objectKey(kind domain.MessageKind, ext string) string {
	return fmt.Sprintf("chat/%s/%s/%s%s", kind, p.now().UTC().Format("2006/01/02"), uuid.New().String(), ext)
}

// cleanup removes an object left behind by a failed upload
func (p *Pipeline) cleanup(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.Delete(ctx, key); err != nil {
		logger.Warn("Failed to remove orphaned media object", zap.String("key", key), zap.Error(err))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}

func matches(mime *mimetype.MIME, allowed []string) bool {
	for _, m := range allowed {
		if mime.Is(m) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
