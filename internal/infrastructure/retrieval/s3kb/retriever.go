// Package s3kb searches documents stored in an S3 bucket. Object keys are used as
// source identifiers, so a "Templates/" prefix resolves to the Templates source.
package s3kb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/chunking"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval"
)

const (
	maxObjectBytes = 8 << 20
	loadTimeout    = 2 * time.Minute
)

type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	Bucket          string
	Prefix          string
	RefreshInterval time.Duration
}

type document struct {
	key    string
	chunks []string
}

type Retriever struct {
	client   objectAPI
	bucket   string
	prefix   string
	refresh  time.Duration
	executor *resilience.Executor
	splitter *chunking.Splitter
	now      func() time.Time

	loads       singleflight.Group
	loadTimeout time.Duration

	mu       sync.Mutex
	docs     []document
	loadedAt time.Time
}

func New(opts Options, executor *resilience.Executor) (*Retriever, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	s3Opts := s3.Options{
		Region:       opts.Region,
		UsePathStyle: true,
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		s3Opts.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
	}
	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(strings.TrimRight(opts.Endpoint, "/"))
	}
	return newRetriever(s3.New(s3Opts), opts, executor), nil
}

func newRetriever(client objectAPI, opts Options, executor *resilience.Executor) *Retriever {
	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	return &Retriever{
		client:      client,
		bucket:      opts.Bucket,
		prefix:      opts.Prefix,
		refresh:     refresh,
		executor:    executor,
		splitter:    chunking.NewSplitter(chunking.DefaultChunkSize, chunking.DefaultChunkOverlap),
		now:         time.Now,
		loadTimeout: loadTimeout,
	}
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	docs, err := r.documents(ctx)
	if err != nil {
		return nil, err
	}

	terms := retrieval.Terms(query)
	type scored struct {
		key   string
		chunk string
		index int
		score float64
	}
	matches := make([]scored, 0, len(docs))
	for _, doc := range docs {
		if chunk, index, score := retrieval.BestChunk(terms, doc.key, doc.chunks); score > 0 {
			matches = append(matches, scored{key: doc.key, chunk: chunk, index: index, score: score})
		}
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
			Content:          retrieval.Snippet(m.chunk),
			SourceIdentifier: m.key,
			Confidence:       m.score,
			Metadata: map[string]any{
				"bucket":      r.bucket,
				"key":         m.key,
				"chunk_index": m.index,
				"backend":     "s3",
			},
		})
	}
	return hits, nil
}

// documents returns the cached index, reloading it from the bucket once it is stale.
// Concurrent callers share one reload, and each stops waiting when its own context
// ends, falling back to the stale index if there is one.
func (r *Retriever) documents(ctx context.Context) ([]document, error) {
	r.mu.Lock()
	stale := r.docs
	fresh := stale != nil && r.now().Sub(r.loadedAt) < r.refresh
	r.mu.Unlock()
	if fresh {
		return stale, nil
	}

	done := r.loads.DoChan("index", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()

		docs, err := resilience.Call(loadCtx, r.executor, "retrieval.s3", r.load, classifyS3Error)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.docs = docs
		r.loadedAt = r.now()
		r.mu.Unlock()
		return docs, nil
	})

	select {
	case res := <-done:
		if res.Err != nil {
			if stale != nil {
				slog.Warn("kb_index_refresh_failed", "backend", "s3", "error", res.Err)
				return stale, nil
			}
			return nil, wrapTemporaryIfNeeded(res.Err)
		}
		return res.Val.([]document), nil
	case <-ctx.Done():
		if stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("wait for s3 index: %w", ctx.Err())
	}
}

func (r *Retriever) load(ctx context.Context) ([]document, error) {
	docs := make([]document, 0)
	pager := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !retrieval.Supported(key) || aws.ToInt64(obj.Size) > maxObjectBytes {
				continue
			}
			text, err := r.read(ctx, key)
			if errors.Is(err, retrieval.ErrUnreadable) {
				slog.Warn("kb_document_skipped", "backend", "s3", "key", key, "error", err)
				continue
			}
			if err != nil {
				return nil, err
			}
			docs = append(docs, document{key: strings.TrimPrefix(key, r.prefix), chunks: r.splitter.Split(text)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].key < docs[j].key })
	return docs, nil
}

func (r *Retriever) read(ctx context.Context, key string) (string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}
	text, err := retrieval.ExtractText(key, data)
	if err != nil {
		return "", fmt.Errorf("extract object %s: %w", key, err)
	}
	return text, nil
}
