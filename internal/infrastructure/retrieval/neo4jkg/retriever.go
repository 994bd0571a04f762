// Package neo4jkg retrieves knowledge-graph nodes through a Neo4j fulltext index.
package neo4jkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
)

const searchCypher = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
RETURN elementId(node) AS id,
	coalesce(node.source, head(labels(node)), '') AS source,
	coalesce(node.title, '') AS title,
	coalesce(node.text, node.content, '') AS content,
	score
ORDER BY score DESC
LIMIT $limit
`

type queryFunc func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)

type Options struct {
	Database string
	Index    string
}

type Retriever struct {
	query    queryFunc
	index    string
	executor *resilience.Executor
}

func Open(ctx context.Context, uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

func NewRetriever(driver neo4j.DriverWithContext, opts Options, executor *resilience.Executor) *Retriever {
	database := opts.Database
	query := func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
		result, err := neo4j.ExecuteQuery(ctx, driver, cypher, params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(database),
			neo4j.ExecuteQueryWithReadersRouting(),
		)
		if err != nil {
			return nil, err
		}
		return result.Records, nil
	}
	return newRetriever(query, opts, executor)
}

func newRetriever(query queryFunc, opts Options, executor *resilience.Executor) *Retriever {
	index := opts.Index
	if index == "" {
		index = "kb_fulltext"
	}
	return &Retriever{query: query, index: index, executor: executor}
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	params := map[string]any{
		"index": r.index,
		"query": escapeLucene(query),
		"limit": int64(maxResults),
	}
	records, err := resilience.Call(ctx, r.executor, "retrieval.neo4j", func(callCtx context.Context) ([]*neo4j.Record, error) {
		return r.query(callCtx, searchCypher, params)
	}, classifyNeo4jError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(fmt.Errorf("neo4j fulltext query: %w", err))
	}

	hits := make([]domain.RawHit, 0, len(records))
	for _, record := range records {
		hit, err := recordToHit(record)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func recordToHit(record *neo4j.Record) (domain.RawHit, error) {
	id, _, err := neo4j.GetRecordValue[string](record, "id")
	if err != nil {
		return domain.RawHit{}, fmt.Errorf("read node id: %w", err)
	}
	source, _, err := neo4j.GetRecordValue[string](record, "source")
	if err != nil {
		return domain.RawHit{}, fmt.Errorf("read node source: %w", err)
	}
	title, _, err := neo4j.GetRecordValue[string](record, "title")
	if err != nil {
		return domain.RawHit{}, fmt.Errorf("read node title: %w", err)
	}
	content, _, err := neo4j.GetRecordValue[string](record, "content")
	if err != nil {
		return domain.RawHit{}, fmt.Errorf("read node content: %w", err)
	}
	score, _, err := neo4j.GetRecordValue[float64](record, "score")
	if err != nil {
		return domain.RawHit{}, fmt.Errorf("read node score: %w", err)
	}

	return domain.RawHit{
		Content:          content,
		SourceIdentifier: source,
		// Lucene scores are unbounded.
		Confidence: score / (score + 1),
		Metadata: map[string]any{
			"node_id":      id,
			"title":        title,
			"lucene_score": score,
			"backend":      "neo4j",
		},
	}, nil
}

var luceneReplacer = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`,
)

func escapeLucene(query string) string {
	return luceneReplacer.Replace(strings.TrimSpace(query))
}
