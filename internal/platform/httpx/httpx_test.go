package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

var errMissing = errors.New("extract missing")

func TestRespondErrorUsesHandlerRulesFirst(t *testing.T) {
	rules := []Rule{{Target: errMissing, Status: http.StatusNotFound, Title: "Source Not Found"}}

	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("load: %w", errMissing), rules...)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "Source Not Found", body.Title)
	require.Equal(t, "load: extract missing", body.Detail)

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("filter: %w", ErrValidation))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	RespondError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body = ProblemDetail{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Empty(t, body.Detail)

	require.Equal(t, http.StatusNotFound, StatusFor(errMissing, rules...))
}
