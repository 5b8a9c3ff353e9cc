package whatsapp

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestQRRendering(t *testing.T) {
	code := "2@abcdefghijklmnopqrstuvwxyz,0123456789,ABCDEF=="

	png, err := QRPNG(code)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("QRPNG did not return a PNG")
	}

	url, err := QRDataURL(code)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	if err != nil || !bytes.Equal(raw, png) {
		t.Fatal("data url does not carry the PNG")
	}

	art, err := QRTerminal(code)
	if err != nil || strings.Count(art, "\n") < 10 {
		t.Fatalf("terminal QR looks wrong: %v", err)
	}
}
