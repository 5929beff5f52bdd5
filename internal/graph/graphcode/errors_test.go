package graphcode

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without underlying error",
			err:  New(CodeBadQuery, "test message", http.StatusBadRequest),
			want: "[BAD_QUERY] test message",
		},
		{
			name: "with underlying error",
			err:  Wrap(CodeStorageIO, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[STORAGE_IO] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("cause")
	err := Wrap(CodeStorageIO, "test", http.StatusInternalServerError, underlying)
	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestWithDetails(t *testing.T) {
	err := InvalidArgument("label", "must not be empty")
	if err.Details["field"] != "label" {
		t.Errorf("Details[field] = %v, want label", err.Details["field"])
	}
	if err.Details["reason"] != "must not be empty" {
		t.Errorf("Details[reason] = %v", err.Details["reason"])
	}
}

func TestVersionConflictDetails(t *testing.T) {
	err := VersionConflict(3, 4)
	if err.Code != CodeVersionConflict {
		t.Fatalf("unexpected code %v", err.Code)
	}
	if err.Details["expected"] != uint64(3) || err.Details["actual"] != uint64(4) {
		t.Fatalf("unexpected details: %#v", err.Details)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected 409, got %d", err.HTTPStatus)
	}
}

func TestDeadlockVictimMapsToConflict(t *testing.T) {
	err := DeadlockVictim(2)
	if err.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected 409, got %d", err.HTTPStatus)
	}
	if err.Details["tx_id"] != uint64(2) {
		t.Fatalf("expected tx_id 2, got %v", err.Details["tx_id"])
	}
}

func TestIsGraphErrorAndStatusFor(t *testing.T) {
	wrapped := fmt_Errorf_wrap(InvalidReference("node", "42"))
	if !IsGraphError(wrapped) {
		t.Fatalf("expected wrapped error to be detected as a graph error")
	}
	if HTTPStatusFor(wrapped) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", HTTPStatusFor(wrapped))
	}
	if HTTPStatusFor(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("expected default 500 for a non-graph error")
	}
}

func fmt_Errorf_wrap(err error) error {
	return errors.Join(err)
}
