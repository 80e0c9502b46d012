package services

import (
	"testing"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		mime string
		want models.Category
	}{
		{"image/jpeg", models.CategoryImage},
		{"IMAGE/PNG", models.CategoryImage},
		{"video/mp4", models.CategoryVideo},
		{"audio/mpeg", models.CategoryAudio},
		{"application/pdf", models.CategoryDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", models.CategoryDocument},
		{"text/plain; charset=utf-8", models.CategoryDocument},
		{"application/zip", models.CategoryOther},
		{"application/octet-stream", models.CategoryOther},
		{"", models.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.mime))
		})
	}
}
