// Package sonar implements the entity lookup contract: given a seed
// string, scan a set of pre-built indices and return ranked candidate
// domains and hits. Grounded on the teacher's read-only query
// collaborator shape in db/repository/interfaces.go (DocumentRepository /
// GraphRepository expose typed Find/Query methods over named
// collections) adapted to a swallow-and-record-diagnostics contract.
package sonar

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// MatchType enumerates the kinds of hit an index can report.
type MatchType string

const (
	MatchPhone  MatchType = "phone"
	MatchEmail  MatchType = "email"
	MatchBreach MatchType = "breach"
	MatchEntity MatchType = "entity"
	MatchGraph  MatchType = "graph"
	MatchDomain MatchType = "domain"
	MatchURL    MatchType = "url"
)

// Hit is a single index match.
type Hit struct {
	Domain    string
	URL       string
	MatchType MatchType
	Index     string
}

// IndexScanDiagnostic records the outcome of scanning one index,
// including any swallowed error.
type IndexScanDiagnostic struct {
	Index   string
	HitsGot int
	Err     error
}

// Result is the full scan_all response.
type Result struct {
	QueryType      string
	Domains        []string
	IndicesScanned []IndexScanDiagnostic
	Hits           []Hit
}

// Index is a single pre-built lookup index consulted by Scanner.
// Implementations are the "external collaborator" spec.md places out
// of scope; Scanner only ever calls through this interface.
type Index interface {
	// Name identifies the index for diagnostics (e.g. "breach-db",
	// "phone-registry", "entity-graph").
	Name() string
	// Lookup returns hits for query, bounded to limit. An index-local
	// failure (timeout, malformed data) is returned as an error and
	// swallowed by Scanner into a diagnostic entry rather than failing
	// the whole scan.
	Lookup(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Scanner runs a query against every registered Index concurrently-safe
// in sequence (indices are typically few and fast; spec.md does not
// call for concurrency here, unlike the Dive Planner's CC Index fan-out).
type Scanner struct {
	indices []Index
	log     *logrus.Entry
}

// New builds a Scanner over the given indices.
func New(log *logrus.Entry, indices ...Index) *Scanner {
	return &Scanner{indices: indices, log: log}
}

// ScanAll queries every index for query, capped at limit hits per
// index, and aggregates the results. An index failure never aborts the
// scan: it is recorded as a zero-hit diagnostic with the error attached
// and logged at warn level if a logger was supplied.
func (s *Scanner) ScanAll(ctx context.Context, queryType, query string, limit int) Result {
	res := Result{QueryType: queryType}
	domainSet := make(map[string]struct{})

	for _, idx := range s.indices {
		hits, err := idx.Lookup(ctx, query, limit)
		diag := IndexScanDiagnostic{Index: idx.Name(), HitsGot: len(hits), Err: err}
		res.IndicesScanned = append(res.IndicesScanned, diag)

		if err != nil {
			if s.log != nil {
				s.log.WithField("index", idx.Name()).Warnf("sonar: index scan failed: %v", err)
			}
			continue
		}

		res.Hits = append(res.Hits, hits...)
		for _, h := range hits {
			if h.Domain != "" {
				domainSet[h.Domain] = struct{}{}
			}
		}
	}

	res.Domains = make([]string, 0, len(domainSet))
	for d := range domainSet {
		res.Domains = append(res.Domains, d)
	}

	return res
}

// ErrIndexUnavailable is a convenience sentinel indices can wrap when
// they cannot be reached at all (e.g. backing service down), so
// callers inspecting diagnostics can distinguish "no hits" from
// "could not scan."
type ErrIndexUnavailable struct {
	Index string
	Err   error
}

func (e *ErrIndexUnavailable) Error() string {
	return fmt.Sprintf("sonar index %q unavailable: %v", e.Index, e.Err)
}

func (e *ErrIndexUnavailable) Unwrap() error { return e.Err }
