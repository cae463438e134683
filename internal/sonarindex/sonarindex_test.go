package sonarindex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zadorian/submarine/internal/sonar"
)

func TestLookupDecodesHitsAndTagsIndexName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"domain":"acme.com","match_type":"entity"}]`))
	}))
	defer srv.Close()

	idx := New("breach-db", srv.URL, 5)
	hits, err := idx.Lookup(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "acme.com", hits[0].Domain)
	assert.Equal(t, sonar.MatchEntity, hits[0].MatchType)
	assert.Equal(t, "breach-db", hits[0].Index)
}

func TestLookupReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	idx := New("breach-db", srv.URL, 5)
	_, err := idx.Lookup(context.Background(), "acme", 10)
	assert.Error(t, err)
}
