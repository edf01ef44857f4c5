// Package memory implements the long-term Memory Service contract (§6):
// StoreFact, Search, and Forget, backed by a concrete Postgres+pgvector
// adapter with an in-memory scripted adapter for tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Result is one retrieved memory, matching §6's {content, score, source, metadata} shape.
type Result struct {
	Content  string
	Score    float64
	Source   string
	Metadata map[string]string
}

// Service is the external Memory Service contract. All operations are
// async-safe and may fail without affecting conversation continuity — callers
// should log and continue rather than treat a Service error as fatal.
type Service interface {
	StoreFact(ctx context.Context, text string) error
	Search(ctx context.Context, query string, k int) ([]Result, error)
	Forget(ctx context.Context, query string) (int, error)
}

// Embedder turns text into a vector for similarity search. Injected so the
// Memory Service stays agnostic of which embedding model backs it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PGService is the pgx/pgvector-backed concrete implementation of Service.
type PGService struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPGService creates a Postgres+pgvector-backed Memory Service. The table
// is expected to already exist (id uuid, content text, embedding vector,
// source text, created_at timestamptz).
func NewPGService(pool *pgxpool.Pool, embedder Embedder) *PGService {
	return &PGService{pool: pool, embedder: embedder}
}

var _ Service = (*PGService)(nil)

// StoreFact embeds and inserts a fact as a new memory row.
func (s *PGService) StoreFact(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("memory: cannot store empty fact")
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("memory: embed fact: %w", err)
	}

	vec := pgvector.NewVector(embedding)
	query := `
		INSERT INTO voice_assistant_memory (id, content, embedding, source, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.pool.Exec(ctx, query, uuid.New().String(), text, vec, "voice", time.Now().UTC())
	if err != nil {
		return fmt.Errorf("memory: store fact: %w", err)
	}
	return nil
}

// Search returns the k most similar stored facts to query, ranked by
// cosine distance via pgvector's `<=>` operator.
func (s *PGService) Search(ctx context.Context, query string, k int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed search query: %w", err)
	}
	vec := pgvector.NewVector(embedding)

	sqlQuery := `
		SELECT content, source, 1 - (embedding <=> $1) AS similarity, created_at
		FROM voice_assistant_memory
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := s.pool.Query(ctx, sqlQuery, vec, k)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var content, source string
		var similarity float64
		var createdAt time.Time
		if err := rows.Scan(&content, &source, &similarity, &createdAt); err != nil {
			return nil, fmt.Errorf("memory: scan search result: %w", err)
		}
		results = append(results, Result{
			Content: content,
			Score:   similarity,
			Source:  source,
			Metadata: map[string]string{
				"created_at": createdAt.Format(time.RFC3339),
			},
		})
	}
	return results, rows.Err()
}

// Forget deletes stored facts whose content matches query (substring match
// against the text, since the original's "forget that I like X" intent is a
// literal-text match rather than a semantic one), returning the count removed.
func (s *PGService) Forget(ctx context.Context, query string) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM voice_assistant_memory WHERE content ILIKE $1`, "%"+query+"%")
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("memory: forget: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ScriptedService is an in-memory Service used by unit tests and by the
// in-process tool registry's demo wiring. It performs naive substring
// matching instead of vector similarity, with a fixed similarity score.
type ScriptedService struct {
	mu    sync.Mutex
	facts []string
}

// NewScriptedService creates an empty in-memory Memory Service.
func NewScriptedService() *ScriptedService {
	return &ScriptedService{}
}

var _ Service = (*ScriptedService)(nil)

func (s *ScriptedService) StoreFact(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("memory: cannot store empty fact")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, text)
	return nil
}

func (s *ScriptedService) Search(ctx context.Context, query string, k int) ([]Result, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []Result
	for _, fact := range s.facts {
		if strings.Contains(strings.ToLower(fact), query) || overlapsWords(strings.ToLower(fact), query) {
			results = append(results, Result{Content: fact, Score: 0.9, Source: "scripted"})
			if len(results) >= k {
				break
			}
		}
	}
	return results, nil
}

func (s *ScriptedService) Forget(ctx context.Context, query string) (int, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.facts[:0]
	removed := 0
	for _, fact := range s.facts {
		if strings.Contains(strings.ToLower(fact), query) {
			removed++
			continue
		}
		kept = append(kept, fact)
	}
	s.facts = kept
	return removed, nil
}

func overlapsWords(haystack, needle string) bool {
	needleWords := strings.Fields(needle)
	if len(needleWords) == 0 {
		return false
	}
	matches := 0
	for _, w := range needleWords {
		if len(w) >= 3 && strings.Contains(haystack, w) {
			matches++
		}
	}
	return matches > 0 && matches == len(needleWords)
}
