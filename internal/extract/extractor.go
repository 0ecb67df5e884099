package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sort"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/xxxsen/maildigest/internal/model"
)

// ExtractionError marks a document that could not be opened at all:
// malformed, encrypted or structurally unreadable. It is deterministic and
// never retried.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor pulls plain text and embedded raster images out of PDF documents.
// Purely local, no network access.
type Extractor interface {
	Extract(ctx context.Context, doc *model.Document) (*model.ContentBundle, error)
}

type pdfExtractor struct {
	maxImageBytes int
	newID         func() string
}

// Option configures the PDF extractor.
type Option func(*pdfExtractor)

// WithMaxImageBytes caps the byte size of a single extracted image. Larger
// images are recorded as errored entries instead of being carried around.
func WithMaxImageBytes(n int) Option {
	return func(e *pdfExtractor) {
		if n > 0 {
			e.maxImageBytes = n
		}
	}
}

// New creates a PDF content extractor.
func New(opts ...Option) Extractor {
	e := &pdfExtractor{
		maxImageBytes: 8 << 20,
		newID:         func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *pdfExtractor) Extract(ctx context.Context, doc *model.Document) (*model.ContentBundle, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("filename", doc.Filename))

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, &ExtractionError{Filename: doc.Filename, Err: err}
	}

	pageCount := reader.NumPage()
	if pageCount <= 0 {
		return nil, &ExtractionError{Filename: doc.Filename, Err: fmt.Errorf("document has no pages")}
	}

	var sb strings.Builder
	offsets := make([]int, 0, pageCount)
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		offsets = append(offsets, sb.Len())
		text, err := pageText(reader, pageNr)
		if err != nil {
			logger.Warn("page text unreadable, skipping", zap.Int("page", pageNr), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		if pageNr < pageCount {
			sb.WriteString("\f")
		}
	}

	images := e.extractImages(ctx, doc)
	logger.Info("document extracted",
		zap.Int("pages", pageCount),
		zap.Int("images", len(images)),
		zap.Int("text_bytes", sb.Len()),
	)

	return &model.ContentBundle{
		Filename:    doc.Filename,
		Text:        sb.String(),
		PageCount:   pageCount,
		PageOffsets: offsets,
		Images:      images,
		ExtractedAt: time.Now(),
	}, nil
}

// pageText isolates ledongthuc/pdf, which panics on some malformed content
// streams, behind a recover so a bad page degrades instead of crashing.
func pageText(reader *pdf.Reader, pageNr int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", pageNr, r)
		}
	}()
	page := reader.Page(pageNr)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// extractImages walks the raster image objects of every page in document
// order. A single undecodable image becomes an errored entry and never aborts
// the rest of the document.
func (e *pdfExtractor) extractImages(ctx context.Context, doc *model.Document) []*model.ExtractedImage {
	logger := logutil.GetLogger(ctx).With(zap.String("filename", doc.Filename))

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	pages, err := api.ExtractImagesRaw(bytes.NewReader(doc.Data), nil, conf)
	if err != nil {
		logger.Warn("image extraction unavailable for document", zap.Error(err))
		return nil
	}

	var out []*model.ExtractedImage
	for _, pageImages := range pages {
		objNrs := make([]int, 0, len(pageImages))
		for objNr := range pageImages {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)

		for idx, objNr := range objNrs {
			img := pageImages[objNr]
			out = append(out, e.decodeImage(ctx, img, idx+1))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func (e *pdfExtractor) decodeImage(ctx context.Context, img pdfmodel.Image, index int) *model.ExtractedImage {
	entry := &model.ExtractedImage{
		ID:     e.newID(),
		Page:   img.PageNr,
		Index:  index,
		Format: img.FileType,
	}
	data, err := io.ReadAll(img)
	if err != nil {
		entry.Err = fmt.Sprintf("read image stream: %v", err)
		return entry
	}
	if len(data) > e.maxImageBytes {
		entry.Err = fmt.Sprintf("image exceeds %d bytes", e.maxImageBytes)
		return entry
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		logutil.GetLogger(ctx).Warn("undecodable embedded image",
			zap.Int("page", img.PageNr),
			zap.Int("index", index),
			zap.String("file_type", img.FileType),
			zap.Error(err),
		)
		entry.Err = fmt.Sprintf("decode image: %v", err)
		return entry
	}
	entry.Format = format
	entry.Width = cfg.Width
	entry.Height = cfg.Height
	entry.Data = data
	return entry
}
