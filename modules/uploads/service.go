// Package uploads stores chat images in a NATS JetStream object store.
package uploads

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	nanoid "github.com/jaevor/go-nanoid"
)

// URLPrefix is the public path images are served under.
const URLPrefix = "/uploads/images/"

// DefaultMaxBytes caps the size of one image.
const DefaultMaxBytes = 5 << 20

const (
	defaultTimeout = 10 * time.Second
	idLength       = 21
)

// extensions maps the sniffed image types to the extension of the stored name.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{21}\.[a-z]{3,4}$`)

// Image is a stored upload.
type Image struct {
	Name         string `json:"name"`
	URL          string `json:"imageUrl"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
}

// Service validates and stores images.
type Service struct {
	store    ObjectStore
	maxBytes int64
	timeout  time.Duration
	newID    func() string
	logger   types.Logger
}

// NewService creates an upload service.
func NewService(store ObjectStore, maxBytes int64, logger types.Logger) (*Service, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	newID, err := nanoid.Standard(idLength)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:    store,
		maxBytes: maxBytes,
		timeout:  defaultTimeout,
		newID:    newID,
		logger:   logger,
	}, nil
}

// MaxBytes returns the size limit of one image.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores an image sent by userID. The content type is sniffed from the
// data; the client supplied name is only kept as metadata.
func (s *Service) Upload(ctx context.Context, userID, originalName string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, chat.Validationf("No image file provided")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, chat.Validationf("image exceeds %d bytes", s.maxBytes)
	}
	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, chat.Validationf("only image files are allowed")
	}

	originalName = filepath.Base(filepath.Clean(strings.TrimSpace(originalName)))
	if originalName == "." || originalName == string(filepath.Separator) {
		originalName = ""
	}
	if len(originalName) > chat.MaxImageNameLen {
		originalName = originalName[:chat.MaxImageNameLen]
	}

	name := s.newID() + ext
	putCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	info, err := s.store.Put(putCtx, name, data, ObjectMeta{
		ContentType:  contentType,
		OriginalName: originalName,
		UploadedBy:   userID,
	})
	if err != nil {
		return nil, chat.StoreFailure("store image", err)
	}

	s.logger.Info("Image uploaded", "name", name, "size", info.Size, "userID", userID)
	return &Image{
		Name:         name,
		URL:          URLPrefix + name,
		OriginalName: originalName,
		Size:         int64(info.Size),
		ContentType:  contentType,
	}, nil
}

// Get returns the content and content type of a stored image.
func (s *Service) Get(ctx context.Context, name string) ([]byte, string, error) {
	if !namePattern.MatchString(name) {
		return nil, "", chat.NotFound("Image not found")
	}
	getCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, info, err := s.store.Get(getCtx, name)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, "", chat.NotFound("Image not found")
		}
		return nil, "", chat.StoreFailure("read image", err)
	}
	return data, info.ContentType, nil
}
