package whatsapp

import (
	"bytes"
	"errors"
	"image"

	"github.com/sunshineplan/imgconv"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
)

const thumbnailWidth = 72

type MediaOptions struct {
	ConvertWebP bool
	Compress    bool
	MaxWidth    int
}

func MediaOptionsFromEnv() MediaOptions {
	return MediaOptions{
		ConvertWebP: env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP", true),
		Compress:    env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_COMPRESSION", false),
		MaxWidth:    env.GetEnvIntOrDefault("WHATSAPP_MEDIA_IMAGE_MAX_WIDTH", 1024),
	}
}

type preparedImage struct {
	Data      []byte
	MimeType  string
	Thumbnail []byte
}

// prepareImage converts and shrinks an image the way WhatsApp clients expect
// and renders the JPEG preview embedded in the message.
func prepareImage(data []byte, mimeType string, opts MediaOptions) (preparedImage, error) {
	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return preparedImage{}, errors.New("Error While Decoding Image Stream")
	}

	out := preparedImage{Data: data, MimeType: mimeType}

	if mimeType == "image/webp" && opts.ConvertWebP {
		buf := new(bytes.Buffer)
		if err := imgconv.Write(buf, img, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
			return preparedImage{}, errors.New("Error While Encoding Convert Image Stream")
		}
		out.Data = buf.Bytes()
		out.MimeType = "image/png"
	}

	if opts.Compress && opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		buf := new(bytes.Buffer)
		img = imgconv.Resize(img, &imgconv.ResizeOption{Width: opts.MaxWidth})
		if err := imgconv.Write(buf, img, &imgconv.FormatOption{Format: imgconv.JPEG}); err != nil {
			return preparedImage{}, errors.New("Error While Encoding Resize Image Stream")
		}
		out.Data = buf.Bytes()
		out.MimeType = "image/jpeg"
	}

	out.Thumbnail, err = renderThumbnail(img)
	if err != nil {
		return preparedImage{}, err
	}
	return out, nil
}

func renderThumbnail(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := imgconv.Write(buf,
		imgconv.Resize(img, &imgconv.ResizeOption{Width: thumbnailWidth}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, errors.New("Error While Encoding Thumbnail Image Stream")
	}
	return buf.Bytes(), nil
}
