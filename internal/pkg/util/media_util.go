package util

import (
	"bytes"
	"strings"

	"github.com/disintegration/imaging"
)

// ThumbnailSize 联系人头像缓存尺寸
const ThumbnailSize = 120

// MakeThumbnail 将头像裁剪为正方形 JPEG，避免把原图写入缓存
func MakeThumbnail(data []byte, size int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NormalizeAudioFilename 服务端文件名形如 xxx.m4a.aac，本地播放需要 .m4a 后缀
func NormalizeAudioFilename(name string) string {
	if strings.HasSuffix(name, ".m4a.aac") {
		return strings.TrimSuffix(name, ".aac")
	}
	return name
}
