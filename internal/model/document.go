package model

import "time"

// Document is one unit of summarizable content as handed over by the
// ingestion side: raw bytes plus the declared media type and source filename.
// Immutable once built.
type Document struct {
	Filename  string
	MediaType string
	Data      []byte
}

// ExtractedImage is a single raster image lifted out of a document page.
// Identity is the synthetic ID, never the content or filename, so concurrent
// extractions cannot collide. If Err is set the image could not be decoded:
// dimensions are zero, Data is nil and the image only shows up in the report
// as "no caption available".
type ExtractedImage struct {
	ID      string
	Page    int // 1-based page number
	Index   int // 1-based position within the page
	Format  string
	Width   int
	Height  int
	Data    []byte
	Caption string
	Err     string
}

// Failed reports whether the image was recorded as a decode failure.
func (i *ExtractedImage) Failed() bool {
	return i.Err != ""
}

// ContentBundle is the normalized output of extraction: the full text of the
// document plus its images in (page, index) order. Read-only after build.
type ContentBundle struct {
	Filename    string
	Text        string
	PageCount   int
	PageOffsets []int // byte offset of each page's text within Text
	Images      []*ExtractedImage
	ExtractedAt time.Time
}

// UsableImages returns the images that decoded successfully, preserving order.
func (b *ContentBundle) UsableImages() []*ExtractedImage {
	out := make([]*ExtractedImage, 0, len(b.Images))
	for _, img := range b.Images {
		if !img.Failed() {
			out = append(out, img)
		}
	}
	return out
}
