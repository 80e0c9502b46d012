package blobstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirKeys(t *testing.T) {
	d := Dir{OwnerID: 3, Originals: "user_3", Thumbnails: ThumbnailsDir}

	assert.Equal(t, "user_3/abc-cat.jpg", d.Original("abc-cat.jpg"))
	assert.Equal(t, "thumbnails/user_3_thumb_abc-cat.jpg", d.Thumbnail("abc-cat.jpg"))
}

func TestStoredName(t *testing.T) {
	tests := []struct {
		in, suffix string
	}{
		{"holiday photo.jpg", "-holiday_photo.jpg"},
		{"../../etc/passwd", "-passwd"},
		{`C:\Users\me\report.pdf`, "-report.pdf"},
		{"...", "-file"},
		{"", "-file"},
		{"résumé.docx", "-r_sum_.docx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := StoredName(tt.in)
			assert.True(t, strings.HasSuffix(got, tt.suffix), "got %q", got)
			assert.NotContains(t, got, "/")
			assert.Len(t, got, 36+len(tt.suffix))
		})
	}
}

func TestStoredName_LongNameKeepsExtension(t *testing.T) {
	got := StoredName(strings.Repeat("a", 300) + ".mp4")
	assert.True(t, strings.HasSuffix(got, ".mp4"))
	assert.LessOrEqual(t, len(got), 37+maxNameLen)
}

func TestStoredName_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n := StoredName("same.txt")
		assert.False(t, seen[n])
		seen[n] = true
	}
}
