// Package upload stores admin media on local disk under ULID names.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/frostclub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PublicPrefix is the URL path the upload directory is served under.
const PublicPrefix = "/uploads"

const sniffLen = 512

var (
	ErrEmpty           = errors.New("upload_empty")
	ErrTooLarge        = errors.New("upload_too_large")
	ErrUnsupportedType = errors.New("unsupported_media_type")
)

// sniffed content type -> stored extension
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"application/pdf": ".pdf",
}

type File struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type Service struct {
	dir      string
	maxBytes int64
	log      *zap.Logger
}

func New(p Params) *Service {
	maxBytes := p.Cfg.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	dir := strings.TrimSpace(p.Cfg.Upload.Dir)
	if dir == "" {
		dir = "./uploads"
	}
	return &Service{dir: dir, maxBytes: maxBytes, log: p.Log.Named("upload")}
}

func (s *Service) Dir() string { return s.dir }

func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Save sniffs the content type from the leading bytes, ignoring the
// client-declared type and file name.
func (s *Service) Save(ctx context.Context, r io.Reader) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(tmp, io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if written > s.maxBytes {
		return nil, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close upload: %w", err)
	}

	name := strings.ToLower(ulid.Make().String()) + ext
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.log.Info("stored upload",
		zap.String("name", name),
		zap.String("content_type", contentType),
		zap.Int64("size", written),
	)
	return &File{
		Name:        name,
		URL:         PublicPrefix + "/" + name,
		ContentType: contentType,
		Size:        written,
	}, nil
}
