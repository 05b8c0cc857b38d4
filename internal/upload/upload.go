package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/talkroom/talkroom-server/internal/store"
)

// MaxFileSize is the upload cap.
const MaxFileSize = 5 << 20 // 5 MiB

var (
	// ErrFileTooLarge is returned for uploads over MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrDisallowedType is returned for uploads outside the allowed set.
	ErrDisallowedType = errors.New("file type not allowed")
)

// allowedMimes is the accepted set: images, pdf and office documents.
var allowedMimes = map[string]struct{}{
	"image/jpeg":               {},
	"image/png":                {},
	"image/gif":                {},
	"application/pdf":          {},
	"application/msword":       {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
}

// Service stores uploaded attachments on local disk and hands back the
// metadata messages carry. Type checks sniff the actual content, not the
// client-declared header.
type Service struct {
	dir     string
	baseURL string
	log     *zerolog.Logger
}

// NewService creates the upload service and its storage directory.
func NewService(dir, baseURL string, logger *zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger,
	}, nil
}

// Save validates and persists one multipart file, returning the metadata
// to attach to a message.
func (s *Service) Save(header *multipart.FileHeader) (*store.FileMeta, error) {
	if header.Size > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, fmt.Errorf("detect mime type: %w", err)
	}
	if _, ok := allowedMimes[mtype.String()]; !ok {
		return nil, ErrDisallowedType
	}

	// DetectReader consumed a prefix of the stream.
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	name := uuid.NewString() + mtype.Extension()
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}

	s.log.Info().
		Str("stored_name", name).
		Str("original_name", header.Filename).
		Str("mime", mtype.String()).
		Int64("size", size).
		Msg("file uploaded")

	return &store.FileMeta{
		URL:      s.baseURL + "/" + name,
		Name:     header.Filename,
		Size:     size,
		MimeType: mtype.String(),
	}, nil
}

// Dir returns the storage directory, served statically by the transport.
func (s *Service) Dir() string {
	return s.dir
}
