// Package qrcode renders pairing tokens for HTTP clients and terminals.
package qrcode

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// Image is a rendered pairing token.
type Image struct {
	PNG     []byte
	DataURL string
}

// Render encodes data as a PNG and a matching base64 data URL.
func Render(data string) (Image, error) {
	code, err := qr.Encode(data, qr.L)
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode QR: %w", err)
	}
	if code.Size == 0 {
		return Image{}, fmt.Errorf("empty QR code")
	}

	png := code.PNG()
	return Image{
		PNG:     png,
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// SVG produces a self-contained SVG string for the given QR data.
func SVG(data string, size int) (string, error) {
	code, err := qr.Encode(data, qr.L)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR: %w", err)
	}

	n := code.Size
	if n == 0 {
		return "", fmt.Errorf("empty QR code")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`,
		n, n, size, size,
	))
	sb.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="#fff"/>`, n, n))

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if code.Black(x, y) {
				sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="1" height="1" fill="#000"/>`, x, y))
			}
		}
	}

	sb.WriteString(`</svg>`)
	return sb.String(), nil
}

// PrintTerminal draws the code with half-block characters.
func PrintTerminal(w io.Writer, data string) {
	fmt.Fprintln(w, "\n--- Scan this QR code with WhatsApp (Linked Devices) ---")
	qrterminal.GenerateHalfBlock(data, qrterminal.L, w)
	fmt.Fprintln(w, "--- Waiting for scan... ---")
}
