package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDiskMediaStoreSave(t *testing.T) {
	root := t.TempDir()
	store := NewDiskMediaStore(root, 1<<20)

	stored, err := store.Save(7, "../../Mi Foto (1).png", "", bytes.NewReader(encodePNG(t, 8, 8)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", stored.Mimetype)
	assert.True(t, strings.HasPrefix(stored.Filename, "7_"))
	assert.True(t, strings.HasSuffix(stored.Filename, "_Mi_Foto_1.png"), stored.Filename)
	assert.Equal(t, filepath.Join(root, "campaigns", stored.Filename), stored.Path)

	info, err := os.Stat(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, stored.Size, info.Size())

	t.Run("declared mimetype wins", func(t *testing.T) {
		stored, err := store.Save(7, "doc.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", stored.Mimetype)
	})
}

func TestDiskMediaStoreRejectsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	store := NewDiskMediaStore(root, 16)

	_, err := store.Save(1, "big.bin", "", bytes.NewReader(make([]byte, 17)))
	assert.ErrorIs(t, err, ErrMediaTooLarge)

	entries, err := os.ReadDir(filepath.Join(root, "campaigns"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload must be removed")
}

func TestDiskMediaStoreWithoutSizeCap(t *testing.T) {
	for _, maxSize := range []int64{0, -1} {
		store := NewDiskMediaStore(t.TempDir(), maxSize)
		payload := bytes.Repeat([]byte("x"), 4096)

		stored, err := store.Save(1, "big.bin", "application/octet-stream", bytes.NewReader(payload))
		require.NoError(t, err, maxSize)
		assert.Equal(t, int64(len(payload)), stored.Size)

		onDisk, err := os.ReadFile(stored.Path)
		require.NoError(t, err)
		assert.Equal(t, payload, onDisk)
	}
}

func TestDiskMediaStoreThumbnail(t *testing.T) {
	store := NewDiskMediaStore(t.TempDir(), 1<<22)

	stored, err := store.Save(1, "wide.png", "image/png", bytes.NewReader(encodePNG(t, 1024, 256)))
	require.NoError(t, err)

	thumb, err := store.Thumbnail(stored.Path)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, thumbnailMaxDim, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())

	doc, err := store.Save(1, "notes.txt", "text/plain", strings.NewReader("hola"))
	require.NoError(t, err)
	_, err = store.Thumbnail(doc.Path)
	assert.ErrorIs(t, err, ErrMediaNotPreviewable)
}

func TestDiskMediaStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store := NewDiskMediaStore(root, 1<<20)

	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.ErrorIs(t, store.Remove(outside), ErrMediaOutsideRoot)
	assert.ErrorIs(t, store.Remove(filepath.Join(root, "campaigns", "..", "secret.txt")), ErrMediaOutsideRoot)
	_, err := store.Thumbnail("/etc/passwd")
	assert.ErrorIs(t, err, ErrMediaOutsideRoot)

	_, err = os.Stat(outside)
	assert.NoError(t, err)

	// Missing files are not an error
	assert.NoError(t, store.Remove(filepath.Join(root, "campaigns", "gone.png")))
}

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"foto.png":             "foto.png",
		"../../etc/passwd":     "passwd",
		`C:\Users\ana\cv.docx`: "cv.docx",
		"mi archivo ñ.pdf":     "mi_archivo_.pdf",
		"...":                  "file",
		".hidden":              "hidden",
	}
	for in, want := range cases {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestTemplateReplyGenerator(t *testing.T) {
	gen := NewTemplateReplyGenerator()

	draft, err := gen.DraftMessage(context.Background(), MessageDraftRequest{Prompt: "20% de descuento en otoño"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTone, draft.Tone)
	assert.True(t, strings.HasPrefix(draft.Message, "¡Hola {nombre}!"))
	assert.Contains(t, draft.Message, "20% de descuento en otoño")
	assert.True(t, strings.HasSuffix(draft.Message, DefaultCompanyName))

	draft, err = gen.DraftMessage(context.Background(), MessageDraftRequest{Prompt: "x", Tone: "cercano", Company: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "cercano", draft.Tone)
	assert.True(t, strings.HasSuffix(draft.Message, "Acme"))

	reply, err := gen.Reply(context.Background(), ReplyRequest{Message: "¿Abrís el sábado?"})
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "¿Abrís el sábado?")
	assert.Contains(t, reply.Response, automatedReplyTrailer)
	assert.InDelta(t, 0.95, reply.Confidence, 1e-9)
}
