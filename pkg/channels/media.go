package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/sipeed/wabridge/pkg/outbound"
)

const defaultMaxMediaBytes = 64 << 20

// FetchedMedia is a downloaded attachment ready for upload.
type FetchedMedia struct {
	Data     []byte
	MimeType string
	FileName string
}

// MediaFetcher downloads outbound attachments from their source URL.
type MediaFetcher struct {
	client   *resty.Client
	maxBytes int
}

func NewMediaFetcher(timeout time.Duration, maxBytes int) *MediaFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxMediaBytes
	}
	return &MediaFetcher{
		client:   resty.New().SetTimeout(timeout).SetResponseBodyLimit(maxBytes),
		maxBytes: maxBytes,
	}
}

func (f *MediaFetcher) Fetch(ctx context.Context, mediaURL string) (FetchedMedia, error) {
	resp, err := f.client.R().SetContext(ctx).Get(mediaURL)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return FetchedMedia{}, fmt.Errorf("media exceeds the %d byte limit: %w", f.maxBytes, err)
	}
	if err != nil {
		return FetchedMedia{}, fmt.Errorf("failed to download media: %w", err)
	}
	if resp.IsError() {
		return FetchedMedia{}, fmt.Errorf("media download returned status %d", resp.StatusCode())
	}

	data := resp.Body()
	if len(data) == 0 {
		return FetchedMedia{}, fmt.Errorf("media at %s is empty", mediaURL)
	}

	mime := mimetype.Detect(data)
	return FetchedMedia{
		Data:     data,
		MimeType: mime.String(),
		FileName: fileNameFor(mediaURL, mime.Extension()),
	}, nil
}

func fileNameFor(mediaURL, ext string) string {
	if u, err := url.Parse(mediaURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "file" + ext
}

func mediaTypeFor(kind outbound.Kind) (whatsmeow.MediaType, error) {
	switch kind {
	case outbound.KindImage:
		return whatsmeow.MediaImage, nil
	case outbound.KindVideo:
		return whatsmeow.MediaVideo, nil
	case outbound.KindAudio:
		return whatsmeow.MediaAudio, nil
	case outbound.KindDocument:
		return whatsmeow.MediaDocument, nil
	}
	return "", fmt.Errorf("%w: %s", outbound.ErrInvalidMediaType, kind)
}

// buildMediaMessage wraps an uploaded attachment in the protobuf variant for
// its kind.
func buildMediaMessage(msg outbound.Message, media FetchedMedia, up whatsmeow.UploadResponse) (*waE2E.Message, error) {
	var caption *string
	if msg.Caption != "" {
		caption = proto.String(msg.Caption)
	}

	switch msg.Kind {
	case outbound.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       caption,
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	case outbound.KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       caption,
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	case outbound.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	case outbound.KindDocument:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       caption,
			FileName:      proto.String(media.FileName),
			Title:         proto.String(media.FileName),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	}
	return nil, fmt.Errorf("%w: %s", outbound.ErrInvalidMediaType, msg.Kind)
}
