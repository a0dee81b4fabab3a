// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package attachments moves MMS media from the provider into durable blob
// storage. Downloads share the provider rate limiter with every other
// attachment request; uploads go straight to the storage backend.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/smsarchive/internal/config"
	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/metrics"
	"github.com/tomtom215/smsarchive/internal/provider"
	"github.com/tomtom215/smsarchive/internal/ratelimit"
)

// ErrRetriesExhausted wraps the last rate-limit error once every attempt failed.
var ErrRetriesExhausted = errors.New("attachment transfer retries exhausted")

// Backend stores blobs and hands back their public URLs.
type Backend interface {
	EnsureContainer(ctx context.Context) error
	Upload(ctx context.Context, key string, data []byte, contentType, disposition string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL maps a URL returned by Upload back to its key.
	KeyFromURL(blobURL string) (string, error)
}

// Downloader fetches attachment bytes from the provider.
type Downloader interface {
	DownloadContent(ctx context.Context, uri, token string) (*provider.Content, error)
}

// Store downloads, validates and uploads attachments.
type Store struct {
	backend    Backend
	downloader Downloader
	limiter    *ratelimit.Limiter

	folder      string
	maxAttempts int
	baseDelay   time.Duration
	maxJitter   time.Duration

	stampMu   sync.Mutex
	lastStamp int64

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// NewStore creates a Store. limiter paces every download.
func NewStore(backend Backend, downloader Downloader, limiter *ratelimit.Limiter, cfg config.AttachmentsConfig) *Store {
	s := &Store{
		backend:     backend,
		downloader:  downloader,
		limiter:     limiter,
		folder:      strings.Trim(cfg.Folder, "/"),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxJitter:   cfg.MaxJitter,
		now:         time.Now,
		sleep:       sleepCtx,
		jitter:      randomJitter,
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	return s
}

// Init creates the backing container if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if err := s.backend.EnsureContainer(ctx); err != nil {
		return fmt.Errorf("failed to prepare attachment container: %w", err)
	}
	return nil
}

// DownloadAndUpload copies one provider attachment into blob storage and
// returns its public URL.
func (s *Store) DownloadAndUpload(ctx context.Context, sourceURI, fileName, contentType, authToken string) (string, error) {
	uri := normalizeContentURI(sourceURI)
	log := logging.Ctx(ctx).With().Str("uri", uri).Str("content_type", contentType).Logger()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoff(attempt - 1)
			metrics.AttachmentRetries.Inc()
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying attachment transfer")
			if err := s.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		blobURL, size, err := s.transfer(ctx, uri, fileName, contentType, authToken)
		if err == nil {
			metrics.RecordAttachment("success", size)
			log.Debug().Str("blob_url", blobURL).Int("bytes", size).Int("attempt", attempt).Msg("Attachment stored")
			return blobURL, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	metrics.RecordAttachment("failed", 0)
	if provider.IsRateLimit(lastErr) {
		return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, s.maxAttempts, lastErr)
	}
	return "", fmt.Errorf("attachment transfer failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Store) transfer(ctx context.Context, uri, fileName, contentType, token string) (string, int, error) {
	content, err := ratelimit.Do(ctx, s.limiter, func(ctx context.Context) (*provider.Content, error) {
		return s.downloader.DownloadContent(ctx, uri, token)
	})
	if err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}

	if err := checkBinary(content.Data, content.ContentType); err != nil {
		return "", 0, err
	}
	if !magicMatches(content.Data, contentType) {
		logging.Ctx(ctx).Warn().
			Str("declared", contentType).
			Str("served", content.ContentType).
			Msg("Attachment bytes do not match declared content type")
	}

	blobURL, err := s.upload(ctx, content.Data, fileName, contentType)
	if err != nil {
		return "", 0, err
	}
	return blobURL, len(content.Data), nil
}

// UploadAttachment stores data that is already in memory.
func (s *Store) UploadAttachment(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	blobURL, err := s.upload(ctx, data, fileName, contentType)
	if err != nil {
		return "", err
	}
	metrics.RecordAttachment("success", len(data))
	return blobURL, nil
}

func (s *Store) upload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	name := sanitizeFileName(fileName)
	key := fmt.Sprintf("%s/%d_%s", s.folder, s.keyStamp(), name)
	blobURL, err := s.backend.Upload(ctx, key, data, contentType, contentDisposition(contentType, name))
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return blobURL, nil
}

// keyStamp returns the current Unix millisecond, bumped past the previous
// stamp when two uploads land in the same millisecond.
func (s *Store) keyStamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

// Exists reports whether blobURL points at a stored blob. Malformed URLs and
// backend errors report false.
func (s *Store) Exists(ctx context.Context, blobURL string) bool {
	key, err := s.backend.KeyFromURL(blobURL)
	if err != nil {
		return false
	}
	ok, err := s.backend.Exists(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("blob_url", blobURL).Msg("Attachment existence check failed")
		return false
	}
	return ok
}

// DeleteAttachment removes the blob behind blobURL. Failures are logged only.
func (s *Store) DeleteAttachment(ctx context.Context, blobURL string) {
	key, err := s.backend.KeyFromURL(blobURL)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("blob_url", blobURL).Msg("Cannot delete attachment with malformed URL")
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to delete attachment")
	}
}

// backoff returns base·2^(n−1) plus jitter for the n-th retry.
func (s *Store) backoff(n int) time.Duration {
	return s.baseDelay*time.Duration(1<<(n-1)) + s.jitter(s.maxJitter)
}

var contentIDPattern = regexp.MustCompile(`/content/[^/?]+$`)

// normalizeContentURI turns a provider ".../content/{id}" reference into the
// ".../content/{id}/content" endpoint that serves the bytes.
func normalizeContentURI(uri string) string {
	base, query, hasQuery := strings.Cut(uri, "?")
	if contentIDPattern.MatchString(base) {
		base += "/content"
	}
	if hasQuery {
		return base + "?" + query
	}
	return base
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "attachment"
	}
	return name
}

func contentDisposition(contentType, fileName string) string {
	kind := "attachment"
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		kind = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", kind, fileName)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
