package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:4321"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	assert.Equal(t, "10.0.0.5", FromRequest(r, false))
	assert.Equal(t, "203.0.113.9", FromRequest(r, true))

	r.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "198.51.100.2", FromRequest(r, true))

	r.Header.Del("X-Real-IP")
	assert.Equal(t, "10.0.0.5", FromRequest(r, true))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", FromRequest(r, false))
}
