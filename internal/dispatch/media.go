package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadImage reads an image from local disk. The mime type follows the file
// extension, defaulting to jpeg.
func LoadImage(path string) (*Media, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, invalid("imagePath", "image path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, invalid("imagePath", "image file is empty")
	}
	return &Media{
		Data:     data,
		MimeType: mimeFromExtension(path),
		FileName: filepath.Base(path),
	}, nil
}

func mimeFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
