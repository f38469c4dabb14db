// Package imagestore copies a duplicate's photo into local storage for the
// surviving member record.
package imagestore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/logging"
	"github.com/EmpoweredVote/mp-sync/internal/members"
)

const component = "imagestore"

// maxImageBytes caps a single download.
const maxImageBytes = 10 << 20

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

type Options struct {
	// Dir is the local root images are written under.
	Dir string
	// PublicPrefix is prepended to the stored path to form the image ref.
	PublicPrefix string
	Timeout      time.Duration
}

// Store downloads images and writes them to <Dir>/<external_id>/original<ext>.
type Store struct {
	client *resty.Client
	opts   Options
	log    *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/images/members"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "mp-sync/1.0")

	return &Store{client: client, opts: opts, log: log.Named(component)}, nil
}

// Adopt downloads sourceURL and stores it as m's original image. It returns
// the new image ref.
func (s *Store) Adopt(ctx context.Context, m *members.Member, sourceURL string) (string, error) {
	start := time.Now()
	logging.LogRequest(s.log, component, http.MethodGet, sourceURL)

	resp, err := s.client.R().SetContext(ctx).Get(sourceURL)
	if err != nil {
		logging.LogError(s.log, component, "download image", err)
		return "", fmt.Errorf("download image %s: %w", sourceURL, err)
	}
	logging.LogResponse(s.log, component, resp.StatusCode(), time.Since(start), len(resp.Body()))

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("download image %s: unexpected status %s", sourceURL, resp.Status())
	}

	body := resp.Body()
	if len(body) == 0 {
		return "", fmt.Errorf("download image %s: empty body", sourceURL)
	}
	if len(body) > maxImageBytes {
		return "", fmt.Errorf("download image %s: %d bytes exceeds limit", sourceURL, len(body))
	}

	ext := extensionFor(body, sourceURL)
	if ext == "" {
		return "", fmt.Errorf("download image %s: not an image", sourceURL)
	}

	dirName := unsafeChars.ReplaceAllString(m.ExternalID, "_")
	dir := filepath.Join(s.opts.Dir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create member image dir: %w", err)
	}

	name := "original" + ext
	if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	ref := path.Join(s.opts.PublicPrefix, dirName, name)
	s.log.Info("image adopted",
		zap.String("external_id", m.ExternalID),
		zap.String("source", sourceURL),
		zap.String("image_ref", ref),
		zap.Int("bytes", len(body)),
	)
	return ref, nil
}

// extensionFor sniffs the content type, falling back to the URL's extension
// for image types the sniffer reports generically.
func extensionFor(body []byte, sourceURL string) string {
	mt := mimetype.Detect(body)
	if strings.HasPrefix(mt.String(), "image/") {
		return mt.Extension()
	}
	if mt.Is("text/plain") || mt.Is("application/octet-stream") {
		switch ext := strings.ToLower(path.Ext(sourceURL)); ext {
		case ".jpg", ".jpeg", ".gif", ".png", ".webp":
			return ext
		}
	}
	return ""
}
