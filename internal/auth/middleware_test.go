package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"Basic dXNlcjpwdw==", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	iss, v := newTestPair(t, "", "")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotSub string
	protected := RequireAuth(v, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, _ := iss.Generate("auth0|abc")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantSub    string
	}{
		{"valid token", "Bearer " + valid, http.StatusNoContent, "auth0|abc"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSub = ""
			r := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotSub != tt.wantSub {
				t.Errorf("subject = %q, want %q", gotSub, tt.wantSub)
			}
			if tt.wantStatus == http.StatusUnauthorized && w.Body.String() != unauthorizedBody {
				t.Errorf("body = %q, want %q", w.Body.String(), unauthorizedBody)
			}
		})
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := SubjectFromContext(r.Context()); ok {
		t.Fatal("SubjectFromContext() on a bare context should report false")
	}
	if _, ok := SubjectFromContext(WithSubject(r.Context(), "")); ok {
		t.Fatal("an empty subject is not a subject")
	}
}
