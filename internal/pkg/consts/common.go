package consts

const (
	MimeTypeChunk = "audio/mp4"
)

const (
	ChunkObjectPrefix = "chunks/"
)
