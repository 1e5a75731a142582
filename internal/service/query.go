package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/repository"
)

// NoRelevantAnswer is returned when nothing in the store clears the score
// threshold. Callers must treat it as a sentinel, not a real answer.
const NoRelevantAnswer = "no relevant result"

const (
	defaultTopK     = 5
	excerptRunes    = 200
	scoreTieEpsilon = 1e-4
)

// QueryConfig holds configuration for the query service.
type QueryConfig struct {
	ScoreThreshold float32
	TopK           int
}

// LogReader is the read side of the log store needed for query answering.
type LogReader interface {
	ListNewestFirst(ctx context.Context, limit, offset int) ([]domain.LogEntry, error)
	Latest(ctx context.Context) (*domain.LogEntry, error)
	Count(ctx context.Context) (int64, error)
}

// VectorIndex stores and searches log embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.LogPayload) error
	Search(ctx context.Context, vector []float32, topK int) ([]repository.SearchResult, error)
}

// QueryService answers free-text questions against the stored voice logs.
// The primary path is semantic: embed the query and search the vector
// index. When embedding or the index is unavailable it falls back to
// lexical token-overlap scoring over the entries themselves, so queries
// keep working without the vector stack.
//
// Index and Answer are safe for concurrent use.
type QueryService struct {
	logRepo        LogReader
	vectorIndex    VectorIndex
	embedding      EmbeddingProvider
	scoreThreshold float32
	topK           int
}

// NewQueryService creates a new query service.
// Parameters:
//   - logRepo: read access to stored log entries.
//   - vectorIndex: vector index; nil disables the semantic path.
//   - embedding: embedding provider; nil disables the semantic path.
//   - cfg: query configuration settings.
// Returns:
//   - *QueryService: initialized query service.
func NewQueryService(logRepo LogReader, vectorIndex VectorIndex, embedding EmbeddingProvider, cfg *QueryConfig) *QueryService {
	var threshold float32
	topK := defaultTopK
	if cfg != nil {
		threshold = cfg.ScoreThreshold
		if cfg.TopK > 0 {
			topK = cfg.TopK
		}
	}
	return &QueryService{
		logRepo:        logRepo,
		vectorIndex:    vectorIndex,
		embedding:      embedding,
		scoreThreshold: threshold,
		topK:           topK,
	}
}

// Answer resolves a free-text query against the stored logs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: free-text question.
// Returns:
//   - *domain.QueryResult: best-scoring entry, or the NoRelevantAnswer
//     sentinel when nothing clears the threshold.
//   - error: domain.ErrNoLogsAvailable when the store is empty.
func (s *QueryService) Answer(ctx context.Context, query string) (*domain.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	count, err := s.logRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count log entries: %w", err)
	}
	if count == 0 {
		return nil, domain.ErrNoLogsAvailable
	}

	best, err := s.semanticSearch(ctx, query)
	if err != nil {
		logger.CtxWarn(ctx, "Semantic search failed, falling back to lexical search: error=%v", err)
		best, err = s.lexicalSearch(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	if best == nil || best.Score < s.scoreThreshold {
		return &domain.QueryResult{
			Query:  query,
			Answer: NoRelevantAnswer,
		}, nil
	}

	best.Query = query
	return best, nil
}

// semanticSearch runs the vector path. Among hits it keeps the highest
// score; entries scoring within a small epsilon of each other are broken
// by recency, newest first.
func (s *QueryService) semanticSearch(ctx context.Context, query string) (*domain.QueryResult, error) {
	if s.vectorIndex == nil || s.embedding == nil {
		return nil, fmt.Errorf("vector search not configured")
	}

	vector, err := s.embedding.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.vectorIndex.Search(ctx, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}

	var best *repository.SearchResult
	for i := range hits {
		hit := &hits[i]
		if hit.Payload == nil {
			continue
		}
		if best == nil || betterHit(hit.Score, hit.Payload.Timestamp, best.Score, best.Payload.Timestamp) {
			best = hit
		}
	}

	if best == nil {
		return nil, nil
	}

	answer := best.Payload.Summary
	if answer == "" {
		answer = best.Payload.Excerpt
	}

	return &domain.QueryResult{
		Answer:         answer,
		SourceFilename: best.Payload.Filename,
		Score:          best.Score,
		Timestamp:      best.Payload.Timestamp,
	}, nil
}

// lexicalSearch scores every entry by token overlap with the query.
// Entries are visited newest first, and a challenger must beat the
// incumbent by more than the tie epsilon, which gives newer entries the
// tie-break for free.
func (s *QueryService) lexicalSearch(ctx context.Context, query string) (*domain.QueryResult, error) {
	entries, err := s.logRepo.ListNewestFirst(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var best *domain.QueryResult
	for i := range entries {
		entry := &entries[i]
		score := overlapScore(queryTokens, tokenize(entry.Summary+"\n"+entry.Transcript))
		if score == 0 {
			continue
		}
		if best == nil || score > best.Score+scoreTieEpsilon {
			answer := entry.Summary
			if answer == "" {
				answer = excerpt(entry.Transcript)
			}
			best = &domain.QueryResult{
				Answer:         answer,
				SourceFilename: entry.Filename,
				Score:          score,
				Timestamp:      entry.Timestamp,
			}
		}
	}

	return best, nil
}

// betterHit reports whether the challenger beats the incumbent: higher
// score wins, and scores within the tie epsilon go to the newer entry.
func betterHit(score float32, ts time.Time, bestScore float32, bestTS time.Time) bool {
	diff := score - bestScore
	if diff > scoreTieEpsilon {
		return true
	}
	if diff < -scoreTieEpsilon {
		return false
	}
	return ts.After(bestTS)
}

// Index adds or refreshes one entry in the vector index. The point ID is
// derived from the filename, so re-indexing the same entry overwrites its
// previous vector instead of duplicating it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: persisted log entry to index.
// Returns:
//   - error: non-nil if embedding or upsert fails.
func (s *QueryService) Index(ctx context.Context, entry *domain.LogEntry) error {
	if s.vectorIndex == nil || s.embedding == nil {
		return nil // lexical-only deployment
	}

	text := entry.Summary
	if text == "" {
		text = entry.Transcript
	}

	vector, err := s.embedding.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed entry %s: %w", entry.Filename, err)
	}

	pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(entry.Filename)).String()
	payload := &repository.LogPayload{
		Filename:  entry.Filename,
		Timestamp: entry.Timestamp,
		Summary:   entry.Summary,
		Excerpt:   excerpt(entry.Transcript),
	}

	if err := s.vectorIndex.Upsert(ctx, pointID, vector, payload); err != nil {
		return fmt.Errorf("failed to index entry %s: %w", entry.Filename, err)
	}
	return nil
}

// Rebuild re-indexes every stored entry. Used after changing embedding
// models or standing up a fresh vector collection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of entries indexed.
//   - error: non-nil on the first failure.
func (s *QueryService) Rebuild(ctx context.Context) (int, error) {
	entries, err := s.logRepo.ListNewestFirst(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list log entries: %w", err)
	}

	indexed := 0
	for i := range entries {
		if err := s.Index(ctx, &entries[i]); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

// excerpt returns the first excerptRunes runes of text.
func excerpt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= excerptRunes {
		return string(runes)
	}
	return string(runes[:excerptRunes])
}

// tokenize splits text into lowercase ASCII words and CJK character
// bigrams. CJK scripts carry no word boundaries, so bigrams give the
// overlap score something to match on.
func tokenize(text string) []string {
	var tokens []string
	var word []rune
	var cjk []rune

	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	flushCJK := func() {
		if len(cjk) == 1 {
			tokens = append(tokens, string(cjk))
		}
		for i := 0; i+1 < len(cjk); i++ {
			tokens = append(tokens, string(cjk[i:i+2]))
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()

	return tokens
}

// overlapScore returns the fraction of query tokens present in the text
// tokens, in [0, 1].
func overlapScore(queryTokens, textTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(textTokens))
	for _, t := range textTokens {
		seen[t] = true
	}
	matched := 0
	for _, t := range queryTokens {
		if seen[t] {
			matched++
		}
	}
	return float32(matched) / float32(len(queryTokens))
}
