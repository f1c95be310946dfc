// Package chromem adapts chromem-go, a pure-Go embedded vector database,
// to the memory.Store interface.
package chromem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
)

// ChromemStore wraps chromem-go. Each subject gets its own collection for
// namespace isolation. The adapter embeds fact content and query text
// through the injected Embedder; chromem only ever sees vectors.
type ChromemStore struct {
	db       *chromem.DB
	embedder memory.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	seen        map[string]memory.StoreKey // dedup window: process lifetime
}

// New creates a chromem-backed store. The per-environment database is an
// explicit dependency of the constructor; nothing is read from ambient
// global state.
func New(embedder memory.Embedder) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &ChromemStore{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
		seen:        make(map[string]memory.StoreKey),
	}, nil
}

func (s *ChromemStore) getOrCreateCollection(subjectID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[subjectID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[subjectID]; exists {
		return col, nil
	}

	name := "subject_" + subjectID
	if subjectID == "" {
		name = "global"
	}
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[subjectID] = col
	return col, nil
}

// Upsert stores a fact. The document ID is derived from the fact's
// logical identity, so re-upserting an identical (subject_id, content)
// pair within this process returns the original key without a second
// document.
func (s *ChromemStore) Upsert(ctx context.Context, fact *core.Fact) (memory.StoreKey, error) {
	key := memory.StoreKey(docID(fact))

	s.mu.RLock()
	_, dup := s.seen[string(key)]
	s.mu.RUnlock()
	if dup {
		log.Printf("[CHROMEM] dedup hit for subject=%s", fact.SubjectID)
		return key, nil
	}

	col, err := s.getOrCreateCollection(fact.SubjectID)
	if err != nil {
		return "", err
	}

	embedding, err := s.embedder.Embed(ctx, fact.Content)
	if err != nil {
		return "", fmt.Errorf("embed fact: %w", err)
	}

	doc := chromem.Document{
		ID:        string(key),
		Content:   fact.Content,
		Embedding: embedding,
		Metadata:  factMetadata(fact),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("%w: add document: %v", memory.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.seen[string(key)] = key
	s.mu.Unlock()

	log.Printf("[CHROMEM] stored fact type=%s subject=%s", fact.Type, fact.SubjectID)
	return key, nil
}

// Query embeds the text and runs a similarity search over the subject's
// collection. chromem requires nResults <= collection size, so the limit
// is walked down on the characteristic error, exactly like an empty or
// tiny collection would need.
func (s *ChromemStore) Query(ctx context.Context, text string, filters memory.QueryFilters, topK int) ([]memory.ScoredFact, error) {
	if topK <= 0 {
		topK = 10
	}
	col, err := s.getOrCreateCollection(filters.SubjectID)
	if err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where := map[string]string{}
	if filters.SubjectID != "" {
		where["subject_id"] = filters.SubjectID
	}
	if filters.SessionID != "" {
		where["session_id"] = filters.SessionID
	}
	if len(filters.FactTypes) == 1 {
		// chromem's where clause is exact-match only; multi-type filters
		// are applied after the query.
		where["fact_type"] = string(filters.FactTypes[0])
	}

	var results []chromem.Result
	for limit := topK; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, queryVec, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("%w: chromem query: %v", memory.ErrStoreUnavailable, err)
	}

	now := time.Now()
	facts := make([]memory.ScoredFact, 0, len(results))
	for _, r := range results {
		fact := factFromResult(r)
		if !filters.WantsType(fact.Type) || fact.Expired(now) {
			continue
		}
		facts = append(facts, memory.ScoredFact{Fact: fact, Score: float64(r.Similarity)})
	}
	log.Printf("[CHROMEM] returning %d facts for subject=%s", len(facts), filters.SubjectID)
	return facts, nil
}

// Close releases nothing; chromem keeps everything in memory.
func (s *ChromemStore) Close() error {
	return nil
}

// docID derives the physical key from the fact's logical identity.
func docID(fact *core.Fact) string {
	sum := sha256.Sum256([]byte(fact.DedupKey()))
	return hex.EncodeToString(sum[:])
}

func factMetadata(fact *core.Fact) map[string]string {
	m := map[string]string{
		"fact_id":    fact.ID,
		"fact_type":  string(fact.Type),
		"subject_id": fact.SubjectID,
		"session_id": fact.SessionID,
		"created_at": fact.CreatedAt.Format(time.RFC3339Nano),
	}
	if fact.Supersedes != "" {
		m["supersedes"] = fact.Supersedes
	}
	if !fact.ExpiresAt.IsZero() {
		m["expires_at"] = fact.ExpiresAt.Format(time.RFC3339Nano)
	}
	return m
}

func factFromResult(r chromem.Result) *core.Fact {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	fact := &core.Fact{
		ID:         r.Metadata["fact_id"],
		Type:       core.FactType(r.Metadata["fact_type"]),
		Content:    r.Content,
		SubjectID:  r.Metadata["subject_id"],
		SessionID:  r.Metadata["session_id"],
		CreatedAt:  createdAt,
		Supersedes: r.Metadata["supersedes"],
	}
	if exp := r.Metadata["expires_at"]; exp != "" {
		fact.ExpiresAt, _ = time.Parse(time.RFC3339Nano, exp)
	}
	return fact
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
