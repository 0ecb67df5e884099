package convert

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/maildigest/internal/model"
	pkgerrors "github.com/xxxsen/maildigest/internal/pkg/errors"
)

func pngAttachment(t *testing.T, name string) *model.Attachment {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &model.Attachment{Filename: name, MediaType: "image/png", Data: buf.Bytes()}
}

func TestConvertPDFPassthrough(t *testing.T) {
	c := New()
	data := []byte("%PDF-1.4 pretend")
	doc, err := c.Convert(context.Background(), &model.Attachment{
		Filename:  "invoice.pdf",
		MediaType: "application/pdf",
		Data:      data,
	})
	require.NoError(t, err)
	require.Equal(t, "invoice.pdf", doc.Filename)
	require.Equal(t, "application/pdf", doc.MediaType)
	require.Equal(t, data, doc.Data)
}

func TestConvertImageToPDF(t *testing.T) {
	c := New()
	doc, err := c.Convert(context.Background(), pngAttachment(t, "chart.png"))
	require.NoError(t, err)
	require.Equal(t, "chart.pdf", doc.Filename)
	require.Equal(t, "application/pdf", doc.MediaType)
	require.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
}

func TestConvertRejectsEmpty(t *testing.T) {
	c := New()
	_, err := c.Convert(context.Background(), &model.Attachment{Filename: "a.pdf"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalid)
}

func TestConvertRejectsOversized(t *testing.T) {
	c := New(WithMaxBytes(8))
	_, err := c.Convert(context.Background(), &model.Attachment{
		Filename: "a.pdf",
		Data:     make([]byte, 9),
	})
	require.ErrorIs(t, err, pkgerrors.ErrTooLarge)
}

func TestConvertUnsupportedType(t *testing.T) {
	c := New()
	_, err := c.Convert(context.Background(), &model.Attachment{
		Filename:  "archive.zip",
		MediaType: "application/zip",
		Data:      []byte{1, 2, 3},
	})
	require.ErrorIs(t, err, pkgerrors.ErrUnsupportedType)
}

// fakeSoffice mimics the LibreOffice CLI contract: drop a .pdf next to the
// input file inside --outdir.
const fakeSoffice = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--outdir" ]; then out="$a"; fi
  prev="$a"
done
input="$a"
base=$(basename "$input")
printf '%%PDF-1.4 converted' > "$out/${base%.*}.pdf"
`

func TestConvertOffice(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell fixture")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "soffice")
	require.NoError(t, os.WriteFile(script, []byte(fakeSoffice), 0o755))

	c := New(WithSofficePath(script), WithSofficeTimeout(10*time.Second))
	doc, err := c.Convert(context.Background(), &model.Attachment{
		Filename:  "minutes.docx",
		MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:      []byte("fake docx"),
	})
	require.NoError(t, err)
	require.Equal(t, "minutes.pdf", doc.Filename)
	require.Equal(t, []byte("%PDF-1.4 converted"), doc.Data)
}

func TestConvertOfficeFailure(t *testing.T) {
	c := New(WithSofficePath("/nonexistent/soffice"))
	_, err := c.Convert(context.Background(), &model.Attachment{
		Filename: "minutes.docx",
		Data:     []byte("fake docx"),
	})
	require.Error(t, err)
}
