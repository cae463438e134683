package ruleexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRulePostsToRulePathAndDecodesSuccess(t *testing.T) {
	var gotPath string
	var gotBody ruleRequestBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ruleResponseBody{
			Status: "success",
			Source: "companies_house",
			Data:   map[string]interface{}{"registered_number": "12345678"},
		})
	}))
	defer srv.Close()

	e := NewHTTPExecutor(srv.URL, 5, 0, nil)
	res, err := e.ExecuteRule(context.Background(), "COMPANIES_HOUSE_LOOKUP", "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "companies_house", res.Source)
	assert.Equal(t, "12345678", res.Data["registered_number"])
	assert.Equal(t, "/rules/COMPANIES_HOUSE_LOOKUP", gotPath)
	assert.Equal(t, "Acme Ltd", gotBody.Input)
}

func TestExecuteRuleTreatsNonSuccessStatusAsFailedWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPExecutor(srv.URL, 5, 0, nil)
	res, err := e.ExecuteRule(context.Background(), "WHOIS_FROM_DOMAIN", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Status)
	assert.NotEmpty(t, res.Error)
}
