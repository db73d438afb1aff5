package util

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	items := make([]int, 1200)
	batches := Batch(items, 500)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 500)
	require.Len(t, batches[1], 500)
	require.Len(t, batches[2], 200)

	require.Nil(t, Batch([]int{}, 500))
	require.Len(t, Batch([]int{1, 2}, 0), 1)
}

func TestNormalizeAudioFilename(t *testing.T) {
	require.Equal(t, "abc.m4a", NormalizeAudioFilename("abc.m4a.aac"))
	require.Equal(t, "abc.m4a", NormalizeAudioFilename("abc.m4a"))
	require.Equal(t, "abc.aac", NormalizeAudioFilename("abc.aac"))
}

func TestMakeThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for x := 0; x < 400; x++ {
		for y := 0; y < 300; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := MakeThumbnail(buf.Bytes(), ThumbnailSize)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, ThumbnailSize, img.Bounds().Dx())
	require.Equal(t, ThumbnailSize, img.Bounds().Dy())

	_, err = MakeThumbnail([]byte("not an image"), ThumbnailSize)
	require.Error(t, err)
}

func TestValidateStruct(t *testing.T) {
	type sample struct {
		ID   int64  `validate:"required"`
		Kind string `validate:"oneof=a b"`
	}
	require.NoError(t, ValidateStruct(&sample{ID: 1, Kind: "a"}))
	require.Error(t, ValidateStruct(&sample{Kind: "a"}))
	require.Error(t, ValidateStruct(&sample{ID: 1, Kind: "c"}))
}
