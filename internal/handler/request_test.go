package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
)

func TestDecodeJSON_Course(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantField string
	}{
		{
			name: "complete",
			body: `{"subject":"CS","number":290,"title":"Web Dev","term":"fa24","instructor_id":2}`,
		},
		{
			name:      "missing instructor",
			body:      `{"subject":"CS","number":290,"title":"Web Dev","term":"fa24"}`,
			wantErr:   true,
			wantField: "instructor_id",
		},
		{
			name:      "zero number",
			body:      `{"subject":"CS","number":0,"title":"Web Dev","term":"fa24","instructor_id":2}`,
			wantErr:   true,
			wantField: "number",
		},
		{
			name:      "empty title",
			body:      `{"subject":"CS","number":290,"title":"","term":"fa24","instructor_id":2}`,
			wantErr:   true,
			wantField: "title",
		},
		{
			name:      "unknown field",
			body:      `{"subject":"CS","number":290,"title":"Web Dev","term":"fa24","instructor_id":2,"room":"KEC"}`,
			wantErr:   true,
			wantField: "body",
		},
		{
			name:      "two objects",
			body:      `{"subject":"CS","number":290,"title":"Web Dev","term":"fa24","instructor_id":2}{}`,
			wantErr:   true,
			wantField: "body",
		},
		{
			name:      "not JSON",
			body:      `subject=CS`,
			wantErr:   true,
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/courses", strings.NewReader(tt.body))
			var dst createCourseRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "CS", *dst.Subject)
				assert.Equal(t, int64(2), *dst.InstructorID)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestDecodeJSON_PatchAllowsPartialBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/courses/1", strings.NewReader(`{"term":"sp25"}`))
	var dst patchCourseRequest
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))

	assert.Nil(t, dst.Subject)
	assert.Nil(t, dst.InstructorID)
	require.NotNil(t, dst.Term)
	assert.Equal(t, "sp25", *dst.Term)

	req = httptest.NewRequest(http.MethodPatch, "/courses/1", strings.NewReader(`{"number":-3}`))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &patchCourseRequest{}))
}

func TestDecodeJSON_EnrollmentNeedsBothKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/courses/1/students", strings.NewReader(`{"add":[],"remove":[]}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &enrollmentRequest{}))

	req = httptest.NewRequest(http.MethodPatch, "/courses/1/students", strings.NewReader(`{"add":[4]}`))
	assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &enrollmentRequest{}))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "12", want: 12},
		{raw: "0", wantErr: true},
		{raw: "-4", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", tt.raw)
		got, err := pathID(req, "id")
		if tt.wantErr {
			assert.True(t, errors.Is(err, apperror.ErrNotFound), "raw %q", tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/courses?offset=6&limit=x", nil)

	n, err := queryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = queryInt(req, "page", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = queryInt(req, "limit", 3)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestLinks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Host = "api.internal:8080"

	derived := NewLinks("")
	assert.Equal(t, "http://api.internal:8080/courses/3", derived.Course(req, 3))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://api.internal:8080/users/4/avatar", derived.Avatar(req, 4))

	fixed := NewLinks("https://tarpaulin.example.com/")
	assert.Equal(t, "https://tarpaulin.example.com/courses?offset=6&limit=3", fixed.CoursePage(req, 6, 3))
}
