package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"tagged", NewError(KindQuotaExceeded, "calendar", "rate limited"), KindQuotaExceeded},
		{"wrapped tagged", fmt.Errorf("outer: %w", NewError(KindAuthentication, "", "expired")), KindAuthentication},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindNetworkTimeout},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(KindQuotaExceeded, "agenda.generate", "too many requests"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrAuthentication)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "calendar: authentication: token expired",
		NewError(KindAuthentication, "calendar", "token expired").Error())
	assert.Equal(t, "unknown: boom", (&Error{Kind: KindUnknown, Err: errors.New("boom")}).Error())
}

func TestTag(t *testing.T) {
	cause := errors.New("connection reset")
	tagged := tag("events.create", cause)
	assert.Equal(t, KindUnknown, tagged.Kind)
	assert.Equal(t, "events.create", tagged.Op)
	assert.ErrorIs(t, tagged, cause)

	orig := NewError(KindValidation, "", "bad slot")
	tagged = tag("calendar.check_conflicts", orig)
	assert.Equal(t, "calendar.check_conflicts", tagged.Op)
	assert.Empty(t, orig.Op)

	assert.Equal(t, KindNetworkTimeout, tag("x", context.DeadlineExceeded).Kind)
}

func TestKind_Recoverable(t *testing.T) {
	assert.True(t, KindQuotaExceeded.Recoverable())
	assert.True(t, KindNetworkTimeout.Recoverable())
	assert.False(t, KindAuthentication.Recoverable())
	assert.False(t, KindValidation.Recoverable())
	assert.False(t, KindUnknown.Recoverable())
}
