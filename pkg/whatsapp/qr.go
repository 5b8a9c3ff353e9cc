package whatsapp

import (
	"encoding/base64"

	qrCode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// QRPNG renders a pairing code as a PNG image.
func QRPNG(code string) ([]byte, error) {
	return qrCode.Encode(code, qrCode.Medium, qrImageSize)
}

func QRDataURL(code string) (string, error) {
	png, err := QRPNG(code)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// QRTerminal renders a pairing code with half-block characters for the console.
func QRTerminal(code string) (string, error) {
	q, err := qrCode.New(code, qrCode.Low)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
