package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"relaybot/internal/domain"
)

const (
	defaultMaxImageBytes        = 10 * 1024 * 1024
	defaultStreamThresholdBytes = 5 * 1024 * 1024
	defaultMaxReferenceDepth    = 5

	editedMarker  = "✏️ Edited"
	deletedMarker = "🗑 Deleted"
)

// Annotator appends best-effort sections computed from the raw message text
// to the rendered text.
type Annotator interface {
	Annotate(ctx context.Context, rendered, raw string) string
}

// Renderer turns inbound events into destination-ready payloads.
type Renderer struct {
	source          domain.Source
	annotator       Annotator
	forwardMedia    bool
	maxImageBytes   int64
	streamThreshold int64
	maxDepth        int
	logger          *slog.Logger
}

type RendererConfig struct {
	Source               domain.Source
	Annotator            Annotator // optional
	ForwardMedia         bool
	MaxImageBytes        int64
	StreamThresholdBytes int64
	MaxReferenceDepth    int
	Logger               *slog.Logger
}

func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.StreamThresholdBytes <= 0 {
		cfg.StreamThresholdBytes = defaultStreamThresholdBytes
	}
	if cfg.MaxReferenceDepth < 0 {
		cfg.MaxReferenceDepth = defaultMaxReferenceDepth
	}
	return &Renderer{
		source:          cfg.Source,
		annotator:       cfg.Annotator,
		forwardMedia:    cfg.ForwardMedia,
		maxImageBytes:   cfg.MaxImageBytes,
		streamThreshold: cfg.StreamThresholdBytes,
		maxDepth:        cfg.MaxReferenceDepth,
		logger:          cfg.Logger,
	}
}

// Render produces the payload for ev. Replied-to messages are rendered first
// as a blockquote and their media comes first. A failed reference fetch fails
// the whole render.
func (r *Renderer) Render(ctx context.Context, ev *domain.InboundEvent) (domain.RenderedPayload, error) {
	payload, err := r.render(ctx, ev, 0)
	if err != nil {
		return domain.RenderedPayload{}, err
	}
	if r.annotator != nil {
		payload.Content = r.annotator.Annotate(ctx, payload.Content, ev.Text)
	}
	return payload, nil
}

// render returns the payload for ev without annotations.
func (r *Renderer) render(ctx context.Context, ev *domain.InboundEvent, depth int) (domain.RenderedPayload, error) {
	var (
		lines []string
		media []domain.MediaItem
	)

	switch ev.Kind {
	case domain.EventUpdated:
		lines = append(lines, editedMarker)
	case domain.EventDeleted:
		lines = append(lines, deletedMarker)
	}

	if ev.Reference != nil {
		if depth >= r.maxDepth {
			r.logger.Debug("reference depth cap reached, not following",
				"message_id", ev.ID, "depth", depth)
		} else {
			quoted, err := r.renderReference(ctx, ev.Reference, depth)
			if err != nil {
				return domain.RenderedPayload{}, err
			}
			if quoted.Content != "" {
				lines = append(lines, quote(quoted.Content))
			}
			media = append(media, quoted.Media...)
		}
	}

	text := ResolveMentions(ctx, ev.Text, ev.Mentions, r.source, r.logger)
	if text != "" {
		lines = append(lines, text)
	}

	for _, e := range ev.Embeds {
		for _, field := range []string{e.Title, e.Description, e.URL} {
			if field != "" {
				lines = append(lines, field)
			}
		}
		if r.forwardMedia && e.ImageURL != "" {
			media = append(media, domain.PhotoURL(e.ImageURL))
		}
	}

	for _, a := range ev.Attachments {
		if r.forwardMedia && isImage(a) && a.Size < r.maxImageBytes {
			media = append(media, r.attachmentMedia(a))
			continue
		}
		lines = append(lines, "📎 "+a.Name)
	}

	return domain.RenderedPayload{
		Content: strings.Join(lines, "\n"),
		Media:   media,
	}, nil
}

func (r *Renderer) renderReference(ctx context.Context, ref *domain.Reference, depth int) (domain.RenderedPayload, error) {
	target := ref.Resolved
	if target == nil {
		fetched, err := r.source.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
		if err != nil {
			return domain.RenderedPayload{}, fmt.Errorf("fetch reference %s/%s: %w", ref.ChannelID, ref.MessageID, err)
		}
		target = fetched
	}
	return r.render(ctx, target, depth+1)
}

// attachmentMedia forwards small images by URL and wraps larger ones as a
// stream opened at send time.
func (r *Renderer) attachmentMedia(a domain.Attachment) domain.MediaItem {
	if a.Size < r.streamThreshold {
		return domain.MediaItem{Kind: domain.MediaPhotoURL, URL: a.URL, Name: a.Name, Size: a.Size}
	}
	url := a.URL
	return domain.MediaItem{
		Kind: domain.MediaPhotoStream,
		URL:  url,
		Name: a.Name,
		Size: a.Size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return r.source.OpenAttachment(ctx, url)
		},
	}
}

func isImage(a domain.Attachment) bool {
	return strings.HasPrefix(a.ContentType, "image")
}

// quote prefixes every line of s with "> ".
func quote(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}
