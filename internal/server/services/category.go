package services

import (
	"strings"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
)

// Categorize maps a MIME type to its category. The result is stored once at
// upload and never recomputed.
func Categorize(mimeType string) models.Category {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.CategoryImage
	case strings.HasPrefix(mt, "video/"):
		return models.CategoryVideo
	case strings.HasPrefix(mt, "audio/"):
		return models.CategoryAudio
	case strings.Contains(mt, "pdf"), strings.Contains(mt, "document"), strings.Contains(mt, "text"):
		return models.CategoryDocument
	default:
		return models.CategoryOther
	}
}
