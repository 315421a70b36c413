package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumelens/resume-analyzer/internal/handler"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		aiProvider string
		database   string
		provider   string
	}{
		{"all up", nil, "openrouter", "connected", "openrouter"},
		{"no AI configured", nil, "", "connected", "none"},
		{"database down", errors.New("connection refused"), "openai", "unavailable", "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(fakePinger{err: tt.pingErr}, tt.aiProvider, discardLogger())

			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			require.Equal(t, http.StatusOK, rr.Code)
			body := decodeBody(t, rr)
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, tt.database, body["database"])
			assert.Equal(t, tt.provider, body["provider"])
			assert.NotEmpty(t, body["message"])
		})
	}
}
