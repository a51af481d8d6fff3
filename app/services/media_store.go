package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirphl/nexus-communicator/utils"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrMediaTooLarge       = errors.New("media file exceeds the size limit")
	ErrMediaOutsideRoot    = errors.New("media path is outside the upload directory")
	ErrMediaNotPreviewable = errors.New("media file is not an image")
)

const thumbnailMaxDim = 512

// StoredMedia describes a file written by MediaStore
type StoredMedia struct {
	Filename string
	Path     string
	Size     int64
	Mimetype string
}

// MediaStore keeps campaign attachments on the local filesystem
type MediaStore interface {
	Save(campaignID uint, originalName, declaredMime string, r io.Reader) (*StoredMedia, error)
	Remove(path string) error
	Thumbnail(path string) ([]byte, error)
}

type diskMediaStore struct {
	root    string
	maxSize int64
}

// NewDiskMediaStore stores files under {root}/campaigns. A maxSize <= 0
// disables the size cap.
func NewDiskMediaStore(root string, maxSize int64) MediaStore {
	return &diskMediaStore{root: filepath.Clean(root), maxSize: maxSize}
}

func (s *diskMediaStore) dir() string {
	return filepath.Join(s.root, "campaigns")
}

func (s *diskMediaStore) Save(campaignID uint, originalName, declaredMime string, r io.Reader) (*StoredMedia, error) {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mimetype := declaredMime
	if mimetype == "" || mimetype == "application/octet-stream" {
		mimetype = http.DetectContentType(head)
		if mimetype == "application/octet-stream" {
			if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(originalName))); byExt != "" {
				mimetype = byExt
			}
		}
	}

	filename := fmt.Sprintf("%d_%d_%s", campaignID, utils.UTCNow().UnixNano(), SecureFilename(originalName))
	fullPath := filepath.Join(s.dir(), filename)

	dst, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxSize > 0 {
		src = io.LimitReader(src, s.maxSize+1)
	}
	written, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}
	if s.maxSize > 0 && written > s.maxSize {
		_ = os.Remove(fullPath)
		return nil, ErrMediaTooLarge
	}

	return &StoredMedia{Filename: filename, Path: fullPath, Size: written, Mimetype: mimetype}, nil
}

func (s *diskMediaStore) Remove(path string) error {
	clean, err := s.sanitize(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

func (s *diskMediaStore) Thumbnail(path string) ([]byte, error) {
	clean, err := s.sanitize(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, ErrMediaNotPreviewable
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, fitWithin(img, thumbnailMaxDim), &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitize keeps every touched path inside the upload directory
func (s *diskMediaStore) sanitize(path string) (string, error) {
	if path == "" {
		return "", ErrMediaOutsideRoot
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(s.dir(), clean)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrMediaOutsideRoot
	}
	return clean, nil
}

// fitWithin scales src down so neither side exceeds maxDim, flattening onto white
func fitWithin(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	nw, nh := w, h
	if w > maxDim || h > maxDim {
		if w >= h {
			nw, nh = maxDim, max(1, h*maxDim/w)
		} else {
			nw, nh = max(1, w*maxDim/h), maxDim
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	imagedraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, imagedraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// SecureFilename reduces a client supplied name to a safe ASCII basename
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
