// Package mock serves a fixed in-memory knowledge base. Confidence jitter is seeded so
// runs are reproducible.
package mock

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval"
)

type Document struct {
	Source  string
	Title   string
	Content string
}

type Options struct {
	// Jitter is the maximum absolute confidence noise added per hit. Zero disables it.
	Jitter float64
	Seed   uint64
}

type Retriever struct {
	docs   []Document
	jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

func New(docs []Document, opts Options) *Retriever {
	if docs == nil {
		docs = Fixtures()
	}
	return &Retriever{
		docs:   docs,
		jitter: opts.Jitter,
		rng:    rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := retrieval.Terms(query)
	type scored struct {
		doc   Document
		score float64
	}
	matches := make([]scored, 0, len(r.docs))
	for _, doc := range r.docs {
		score := retrieval.Overlap(terms, doc.Title+" "+doc.Content)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{doc: doc, score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	hits := make([]domain.RawHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, domain.RawHit{
			Content:          m.doc.Content,
			SourceIdentifier: m.doc.Source + "/" + m.doc.Title,
			Confidence:       domain.Clamp01(0.5 + 0.5*m.score + r.noise()),
			Metadata: map[string]any{
				"title":   m.doc.Title,
				"backend": "mock",
			},
		})
	}
	return hits, nil
}

func (r *Retriever) noise() float64 {
	if r.jitter <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.rng.Float64()*2 - 1) * r.jitter
}

func Fixtures() []Document {
	return []Document{
		{Source: "Templates", Title: "status-report-template.md", Content: "Weekly status report template with sections for progress, risks and next steps."},
		{Source: "Templates", Title: "meeting-notes-template.md", Content: "Meeting notes template layout: attendees, agenda, decisions, action items."},
		{Source: "Reports", Title: "q3-status-report.pdf", Content: "Q3 quarterly status report covering delivery metrics and budget."},
		{Source: "Reports", Title: "annual-report-2024.pdf", Content: "Annual report summarizing yearly metrics and outcomes."},
		{Source: "Guidelines", Title: "writing-guidelines.md", Content: "Writing guidelines and best practice for internal reports and documents."},
		{Source: "Policies", Title: "data-retention-policy.md", Content: "Data retention policy: records must be kept seven years; deletion requires approval."},
		{Source: "Policies", Title: "remote-work-policy.md", Content: "Remote work policy describing allowed locations and required equipment."},
		{Source: "Procedures", Title: "expense-procedure.md", Content: "Procedure steps to submit an expense claim and how to attach receipts."},
		{Source: "Examples", Title: "sample-status-report.md", Content: "Example of a completed status report for a small project."},
		{Source: "FAQ", Title: "reporting-faq.md", Content: "Frequently asked questions about reporting deadlines and templates."},
	}
}
