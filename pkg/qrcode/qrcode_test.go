package qrcode

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "2@abcDEF123,xyz987,ZmFrZS1rZXk=,c2VjcmV0"

func TestRender(t *testing.T) {
	img, err := Render(token)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(img.PNG, []byte("\x89PNG\r\n\x1a\n")))
	require.True(t, strings.HasPrefix(img.DataURL, "data:image/png;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(img.DataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, img.PNG, decoded)
}

func TestSVG(t *testing.T) {
	svg, err := SVG(token, 256)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `width="256"`)
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
}

func TestPrintTerminal(t *testing.T) {
	var buf bytes.Buffer
	PrintTerminal(&buf, token)
	assert.Contains(t, buf.String(), "Scan this QR code")
	assert.Greater(t, buf.Len(), 200)
}
