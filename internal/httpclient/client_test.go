package httpclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`{"tag_name":"v1.2.3"}`))
	}))
	defer srv.Close()

	var out struct {
		TagName string `json:"tag_name"`
	}
	err := GetJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Test": "token"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", out.TagName)
}

func TestGetJSON_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), srv.Client(), srv.URL, nil, nil)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Equal(t, "rate limited", string(upstream.Body))
}

func TestUpstreamError_Message(t *testing.T) {
	err := &UpstreamError{URL: "https://example.com/x", StatusCode: http.StatusNotFound}
	assert.Equal(t, "GET https://example.com/x: 404 Not Found", err.Error())

	err.Body = []byte("{\n  \"message\": \"Not Found\"\n}")
	assert.Equal(t, `GET https://example.com/x: 404 Not Found: { "message": "Not Found" }`, err.Error())

	err.Body = bytes.Repeat([]byte("a"), 500)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
	assert.Less(t, len(err.Error()), 200)
}

func TestUpstreamError_RateLimited(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   bool
	}{
		{http.StatusTooManyRequests, "", true},
		{http.StatusForbidden, `{"message":"API rate limit exceeded for 10.0.0.1."}`, true},
		{http.StatusForbidden, `{"message":"Resource not accessible"}`, false},
		{http.StatusInternalServerError, "rate limit", false},
	}
	for _, tt := range tests {
		err := &UpstreamError{StatusCode: tt.status, Body: []byte(tt.body)}
		assert.Equal(t, tt.want, err.RateLimited(), "%d %s", tt.status, tt.body)
	}
}
