package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("title is required"), KindValidation},
		{"not found", NotFound("Chat not found"), KindNotFound},
		{"conflict", Conflict("Username or email already exists", cause), KindConflict},
		{"transient", Transient(context.DeadlineExceeded), KindTransient},
		{"unexpected", Unexpected(cause), KindUnexpected},
		{"wrapped", fmt.Errorf("create chat: %w", NotFound("User not found")), KindNotFound},
		{"foreign", cause, KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := Unexpected(errors.New("pq: relation \"chats\" does not exist"))

	assert.Equal(t, "Internal server error", MessageOf(err))
	assert.Contains(t, err.Error(), "relation")
	assert.Equal(t, "Internal server error", MessageOf(errors.New("raw")))
}

func TestUnwrap(t *testing.T) {
	err := Transient(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
