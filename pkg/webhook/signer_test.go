package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerify(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"type":"incoming_message"}`)

	sig := Sign(secret, body)
	assert.Contains(t, sig, "sha256=")
	assert.True(t, Verify(secret, body, sig))
	assert.False(t, Verify([]byte("other"), body, sig))
	assert.False(t, Verify(secret, []byte(`{}`), sig))
	assert.False(t, Verify(secret, body, "md5=abc"))
}
