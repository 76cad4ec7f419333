// Package fileid provides deterministic document and chunk IDs derived from source identifiers.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const prefix = "doc:"

// DocumentID returns a stable document ID for one or more sources. File paths are
// cleaned first, so the same file always yields the same ID. URLs are used verbatim.
func DocumentID(sources ...string) string {
	h := sha256.New()
	for i, s := range sources {
		if i > 0 {
			h.Write([]byte{0})
		}
		if !strings.Contains(s, "://") {
			s = filepath.Clean(s)
		}
		h.Write([]byte(s))
	}
	return prefix + hex.EncodeToString(h.Sum(nil))[:16]
}

// ChunkID returns the ID of the index-th chunk of docID.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%d", docID, index)
}
