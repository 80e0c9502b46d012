package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func (fx *fixture) stage(t *testing.T, name, mime string, content []byte) StagedFile {
	t.Helper()
	sf, err := fx.svc.Stage(context.Background(), name, mime, bytes.NewReader(content))
	require.NoError(t, err)
	return sf
}

func (fx *fixture) upload(t *testing.T, user models.User, folder *int64, files ...StagedFile) []UploadedFile {
	t.Helper()
	res, err := fx.svc.Upload(context.Background(), user, files, folder)
	require.NoError(t, err)
	return res
}

func (fx *fixture) readPlain(t *testing.T, owner, id int64) []byte {
	t.Helper()
	_, body, err := fx.svc.OpenDecrypted(context.Background(), owner, id)
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	return b
}

func int64p(v int64) *int64 { return &v }
