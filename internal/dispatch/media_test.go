package dispatch

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"promo.png":  "image/png",
		"anim.GIF":   "image/gif",
		"photo.jpg":  "image/jpeg",
		"noext":      "image/jpeg",
		"still.webp": "image/webp",
	}
	for name, wantMime := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte{0x1, 0x2, 0x3}, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		m, err := LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s): %v", name, err)
		}
		if m.MimeType != wantMime || m.FileName != name || len(m.Data) != 3 {
			t.Fatalf("unexpected media for %s: %+v", name, m)
		}
	}
}

func TestLoadImageMissingMapsToNotFound(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("missing image should map to 404")
	}
}

func TestLoadImageEmptyPath(t *testing.T) {
	_, err := LoadImage(" ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
