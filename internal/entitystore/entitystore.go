// Package entitystore provides optional persistence for chain entity
// nodes, satisfying the chain.Store contract. A NopStore drops every
// node (the default — persistence is opt-in); CouchStore upserts each
// node as a JSON document in CouchDB, grounded on
// db/repository/couchdb.go's get-then-preserve-revision upsert idiom.
package entitystore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/zadorian/submarine/internal/model"
)

// NopStore discards every entity, satisfying chain.Store for callers
// who run chains without persistence.
type NopStore struct{}

func (NopStore) PersistEntity(context.Context, model.ChainEntityNode) error { return nil }

// Document is the JSON shape a ChainEntityNode is persisted as: the
// node's fields plus the chain run it was discovered under, so a
// single entities database can hold nodes from every chain run without
// collision.
type Document struct {
	ID                string                 `json:"_id"`
	Rev               string                 `json:"_rev,omitempty"`
	ChainID           string                 `json:"chain_id"`
	Value             string                 `json:"value"`
	Type              string                 `json:"type,omitempty"`
	Depth             int                    `json:"depth"`
	Relevance         float64                `json:"relevance"`
	Confidence        float64                `json:"confidence"`
	NeedsVerification bool                   `json:"needs_verification"`
	Data              map[string]interface{} `json:"data,omitempty"`
}

// CouchStore persists chain entity nodes to a CouchDB database, one
// document per (chain_id, value, type) triple.
type CouchStore struct {
	client *kivik.Client
	db     *kivik.DB
}

// NewCouchStore connects to CouchDB at url (injecting user/password
// into the connection URL when not already present, matching
// NewCouchDBRepository's credential handling) and ensures dbName
// exists, creating it if absent.
func NewCouchStore(ctx context.Context, url, user, password, dbName string) (*CouchStore, error) {
	connectionURL := url
	if user != "" && password != "" && !strings.Contains(connectionURL, "@") {
		parts := strings.SplitN(connectionURL, "://", 2)
		if len(parts) == 2 {
			connectionURL = fmt.Sprintf("%s://%s:%s@%s", parts[0], user, password, parts[1])
		}
	}

	client, err := kivik.New("couch", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("entitystore: connecting to couchdb: %w", err)
	}

	db := client.DB(dbName)
	if err := db.Err(); err != nil {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("entitystore: creating database %s: %w", dbName, err)
		}
		db = client.DB(dbName)
	}

	return &CouchStore{client: client, db: db}, nil
}

// PersistEntity upserts node with an empty chain id, preserving the existing
// document's revision when one is already stored.
func (s *CouchStore) PersistEntity(ctx context.Context, node model.ChainEntityNode) error {
	return s.persist(ctx, "", node)
}

// PersistEntityForChain is the chain-scoped variant callers use when
// they know the originating chain run's id (chain.Store itself only
// requires PersistEntity).
func (s *CouchStore) PersistEntityForChain(ctx context.Context, chainID string, node model.ChainEntityNode) error {
	return s.persist(ctx, chainID, node)
}

func (s *CouchStore) persist(ctx context.Context, chainID string, node model.ChainEntityNode) error {
	id := documentID(chainID, node)

	doc := Document{
		ID:                id,
		ChainID:           chainID,
		Value:             node.Value,
		Type:              node.Type,
		Depth:             node.Depth,
		Relevance:         node.Relevance,
		Confidence:        node.Confidence,
		NeedsVerification: node.NeedsVerification,
		Data:              node.Data,
	}

	var existing Document
	if err := s.db.Get(ctx, id).ScanDoc(&existing); err == nil {
		doc.Rev = existing.Rev
	}

	_, err := s.db.Put(ctx, id, doc)
	return err
}

// Get retrieves a previously persisted node by chainID and value/type,
// or ok=false if no such document exists.
func (s *CouchStore) Get(ctx context.Context, chainID, value, entityType string) (Document, bool, error) {
	id := documentID(chainID, model.ChainEntityNode{Value: value, Type: entityType})
	var doc Document
	err := s.db.Get(ctx, id).ScanDoc(&doc)
	if err != nil {
		return Document{}, false, nil
	}
	return doc, true, nil
}

// ListForChain returns every entity persisted under chainID via a
// Mango selector on chain_id.
func (s *CouchStore) ListForChain(ctx context.Context, chainID string) ([]Document, error) {
	rows := s.db.Find(ctx, map[string]interface{}{"chain_id": chainID})
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// documentID derives a stable, URL-safe CouchDB document id from a
// chain id and an entity's (type, value) — hashed rather than used
// directly since a discovered value (an email, a URL) may contain
// characters CouchDB document ids reject.
func documentID(chainID string, node model.ChainEntityNode) string {
	h := sha1.New()
	h.Write([]byte(chainID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(node.Type)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(node.Value)))
	return hex.EncodeToString(h.Sum(nil))
}
