package domain

import (
	"context"
	"io"
)

// MediaKind tells destinations how a media item is carried.
type MediaKind string

const (
	MediaPhotoURL    MediaKind = "photo_url"
	MediaPhotoStream MediaKind = "photo_stream"
)

// MediaItem is a photo forwarded either by URL or as a stream. Streamed items
// carry an opener so every destination reads its own copy.
type MediaItem struct {
	Kind MediaKind
	URL  string
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// PhotoURL builds a by-reference media item.
func PhotoURL(url string) MediaItem {
	return MediaItem{Kind: MediaPhotoURL, URL: url}
}

// RenderedPayload is the destination-ready form of one inbound event.
type RenderedPayload struct {
	Content string
	Media   []MediaItem
}

// Sender delivers one batch of texts and media. An empty batch is a no-op.
type Sender interface {
	Name() string
	Send(ctx context.Context, texts []string, media []MediaItem) error
}
