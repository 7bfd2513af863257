package registration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewObjectKey builds a collision-resistant object key:
// <unix nanos>_<random>.<ext>.
func NewObjectKey(now time.Time, file AssetFile) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d_%s.%s", now.UnixNano(), suffix, file.Extension())
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// IsAcceptedAssetType reports whether ct is image/png or image/jpeg.
func IsAcceptedAssetType(ct string) bool {
	switch normalizeContentType(ct) {
	case "image/png", "image/jpeg":
		return true
	default:
		return false
	}
}
