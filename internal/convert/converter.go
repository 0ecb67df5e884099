package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/model"
	pkgerrors "github.com/xxxsen/maildigest/internal/pkg/errors"
)

// Converter normalizes inbound attachments to PDF so that one extraction
// pipeline handles everything downstream.
type Converter interface {
	Convert(ctx context.Context, att *model.Attachment) (*model.Document, error)
}

type converter struct {
	sofficePath    string
	sofficeTimeout time.Duration
	maxBytes       int
}

type Option func(*converter)

// WithSofficePath overrides the LibreOffice binary used for office formats.
func WithSofficePath(path string) Option {
	return func(c *converter) {
		if path != "" {
			c.sofficePath = path
		}
	}
}

// WithSofficeTimeout bounds a single office conversion.
func WithSofficeTimeout(d time.Duration) Option {
	return func(c *converter) {
		if d > 0 {
			c.sofficeTimeout = d
		}
	}
}

// WithMaxBytes caps the attachment size accepted for conversion.
func WithMaxBytes(n int) Option {
	return func(c *converter) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

func New(opts ...Option) Converter {
	c := &converter{
		sofficePath:    "soffice",
		sofficeTimeout: 2 * time.Minute,
		maxBytes:       32 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".webp": true,
}

var officeExts = map[string]bool{
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".odt": true, ".ods": true,
	".odp": true, ".rtf": true, ".txt": true,
}

func (c *converter) Convert(ctx context.Context, att *model.Attachment) (*model.Document, error) {
	if len(att.Data) == 0 {
		return nil, fmt.Errorf("attachment %s: %w", att.Filename, pkgerrors.ErrInvalid)
	}
	if len(att.Data) > c.maxBytes {
		return nil, fmt.Errorf("attachment %s: %d bytes: %w", att.Filename, len(att.Data), pkgerrors.ErrTooLarge)
	}

	ext := strings.ToLower(filepath.Ext(att.Filename))
	switch {
	case ext == ".pdf" || att.MediaType == "application/pdf":
		return &model.Document{
			Filename:  att.Filename,
			MediaType: "application/pdf",
			Data:      att.Data,
		}, nil
	case imageExts[ext] || strings.HasPrefix(att.MediaType, "image/"):
		return c.convertImage(ctx, att)
	case officeExts[ext]:
		return c.convertOffice(ctx, att)
	default:
		return nil, fmt.Errorf("attachment %s (%s): %w", att.Filename, att.MediaType, pkgerrors.ErrUnsupportedType)
	}
}

// convertImage wraps a raster image into a one-page PDF.
func (c *converter) convertImage(ctx context.Context, att *model.Attachment) (*model.Document, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	var out bytes.Buffer
	imgs := []io.Reader{bytes.NewReader(att.Data)}
	if err := api.ImportImages(nil, &out, imgs, nil, conf); err != nil {
		return nil, fmt.Errorf("import image %s: %v: %w", att.Filename, err, pkgerrors.ErrInvalid)
	}
	logutil.GetLogger(ctx).Debug("image wrapped into pdf",
		zap.String("filename", att.Filename),
		zap.Int("pdf_bytes", out.Len()),
	)
	return &model.Document{
		Filename:  pdfName(att.Filename),
		MediaType: "application/pdf",
		Data:      out.Bytes(),
	}, nil
}

// convertOffice shells out to LibreOffice in headless mode. The conversion
// runs in a private temp directory and is bounded by the configured timeout.
func (c *converter) convertOffice(ctx context.Context, att *model.Attachment) (*model.Document, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("filename", att.Filename))

	workDir, err := os.MkdirTemp("", "maildigest-convert-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, filepath.Base(att.Filename))
	if err := os.WriteFile(inputPath, att.Data, 0o600); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.sofficeTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, c.sofficePath,
		"--headless", "--norestore",
		"--convert-to", "pdf",
		"--outdir", workDir,
		inputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Warn("office conversion failed", zap.ByteString("output", output), zap.Error(err))
		return nil, fmt.Errorf("convert %s: %v: %w", att.Filename, err, pkgerrors.ErrInvalid)
	}

	outPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".pdf"
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converted pdf: %w", err)
	}
	logger.Debug("office document converted", zap.Int("pdf_bytes", len(data)))
	return &model.Document{
		Filename:  pdfName(att.Filename),
		MediaType: "application/pdf",
		Data:      data,
	}, nil
}

func pdfName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".pdf"
}
