package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"configError", NewConfigError("fields", "empty"), true},
		{"wrappedConfigError", fmt.Errorf("parse: %w", NewConfigError("tracks", "dup")), true},
		{"dataLoadError", &DataLoadError{Source: "standalone", Err: errors.New("no genes")}, true},
		{"remoteAuth", ErrRemoteAuth, true},
		{"wrappedRemoteAuth", fmt.Errorf("remote: %w", ErrRemoteAuth), true},
		{"auxiliaryUnavailable", ErrAuxiliaryDataUnavailable, false},
		{"contextCanceled", context.Canceled, false},
		{"plainError", errors.New("transient"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	if got := NewConfigError("tracks", "duplicate id %q", "pan").Error(); got != `config: tracks: duplicate id "pan"` {
		t.Errorf("message: %s", got)
	}
	if got := (&ConfigError{Reason: "empty document"}).Error(); got != "config: empty document" {
		t.Errorf("fieldless message: %s", got)
	}
}
