package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", Validation("chatId", "invalid id"), http.StatusBadRequest, "chatId: invalid id"},
		{"unauthorized", Unauthorized("missing caller identity"), http.StatusUnauthorized, "missing caller identity"},
		{"forbidden", Forbidden("You can only edit your own messages"), http.StatusForbidden, "You can only edit your own messages"},
		{"not found", NotFound("Chat", "abc"), http.StatusNotFound, "Chat not found"},
		{"conflict", Conflict("You already reacted with this emoji"), http.StatusBadRequest, "You already reacted with this emoji"},
		{"wrapped", fmt.Errorf("load chat: %w", NotFound("Chat", "abc")), http.StatusNotFound, "Chat not found"},
		{"collaborator", Collaborator("identity", errors.New("dial tcp: refused")), http.StatusInternalServerError, "Internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := Status(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.message, msg)
		})
	}
}

func TestCollaboratorUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := Collaborator("membership", cause)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsForbidden(fmt.Errorf("x: %w", Forbidden("no"))))
}
