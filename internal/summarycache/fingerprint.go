package summarycache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/xxxsen/maildigest/internal/model"
)

// ParamsTag versions the processing parameters that influence a summary.
// Bumping it invalidates every previously cached result without a purge.
const ParamsTag = "v2"

// Fingerprint derives the deterministic cache key of a bundle plus guidance.
// Image digests are folded in upload order: the same images in a different
// order name a different summary, because page order drives caption placement
// in the report.
func Fingerprint(bundle *model.ContentBundle, guidance string, paramsTag string) string {
	h := sha256.New()
	writeField(h, []byte(paramsTag))
	writeField(h, []byte(guidance))
	writeField(h, []byte(bundle.Text))
	for _, img := range bundle.Images {
		if img.Failed() {
			writeField(h, []byte("x"))
			continue
		}
		digest := sha256.Sum256(img.Data)
		writeField(h, digest[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes each chunk so adjacent fields cannot alias.
func writeField(h interface{ Write([]byte) (int, error) }, data []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(data)))
	_, _ = h.Write(size[:])
	_, _ = h.Write(data)
}
