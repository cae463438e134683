package entitystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zadorian/submarine/internal/model"
)

func TestNopStoreDiscardsEntities(t *testing.T) {
	var s NopStore
	err := s.PersistEntity(context.Background(), model.ChainEntityNode{Value: "jane.doe@example.com"})
	assert.NoError(t, err)
}

func TestDocumentIDIsStableAndCaseInsensitive(t *testing.T) {
	a := documentID("chain-1", model.ChainEntityNode{Value: "Jane.Doe@Example.com", Type: "email"})
	b := documentID("chain-1", model.ChainEntityNode{Value: "jane.doe@example.com", Type: "EMAIL"})
	assert.Equal(t, a, b)

	c := documentID("chain-2", model.ChainEntityNode{Value: "jane.doe@example.com", Type: "email"})
	assert.NotEqual(t, a, c, "the same entity under a different chain run must not collide")

	d := documentID("chain-1", model.ChainEntityNode{Value: "john.smith@example.com", Type: "email"})
	assert.NotEqual(t, a, d)
}
