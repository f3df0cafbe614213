// Package memory persists prompt/response pairs and retrieves the ones
// most relevant to a new query. Relevance is term overlap between the
// query and the stored document text, with recency as the tie breaker, so
// retrieval always returns something once history exists.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRetrieveLimit matches the retrieval depth used by the planner and
// the chat pipeline when the caller does not ask for more.
const DefaultRetrieveLimit = 3

// candidatePool bounds how many recent rows a retrieval scores.
const candidatePool = 200

// ContextItem is one retrieved interaction in the shape the chat pipeline
// and the planner consume.
type ContextItem struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	UserPrompt string `json:"user_prompt"`
	AIResponse string `json:"ai_response"`
}

// Text renders the item the way it was stored, one block the generation
// prompt can embed directly.
func (c ContextItem) Text() string {
	return fmt.Sprintf("User: %s\nAI: %s", c.UserPrompt, c.AIResponse)
}

// Service stores and retrieves interaction history per user.
type Service struct {
	db            *gorm.DB
	logger        *logging.Logger
	retrieveLimit int
}

func NewService(db *gorm.DB, logger *logging.Logger, retrieveLimit int) *Service {
	if retrieveLimit <= 0 {
		retrieveLimit = DefaultRetrieveLimit
	}
	return &Service{db: db, logger: logger, retrieveLimit: retrieveLimit}
}

// AddInteraction persists one completed exchange and returns its id.
func (s *Service) AddInteraction(ctx context.Context, userID uint, prompt, response string) (string, error) {
	interaction := &models.Interaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		Response:  response,
		Document:  fmt.Sprintf("User: %s\nAI: %s", prompt, response),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(interaction).Error; err != nil {
		return "", err
	}
	s.logger.DebugTag("Memory", "interaction stored", map[string]interface{}{
		"user_id": userID,
		"doc_id":  interaction.ID,
	})
	return interaction.ID, nil
}

// RetrieveContext returns up to limit stored interactions ranked by term
// overlap with the query. Zero-overlap rows still qualify, ranked by
// recency, so a fresh query gets the latest history rather than nothing.
func (s *Service) RetrieveContext(ctx context.Context, userID uint, query string, limit int) ([]ContextItem, error) {
	if limit <= 0 {
		limit = s.retrieveLimit
	}

	var rows []models.Interaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(candidatePool).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []ContextItem{}, nil
	}

	queryTerms := tokenize(query)
	type scored struct {
		row   models.Interaction
		score int
	}
	candidates := make([]scored, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, scored{row: row, score: overlap(queryTerms, tokenize(row.Document))})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].row.CreatedAt.After(candidates[j].row.CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	items := make([]ContextItem, 0, limit)
	for _, c := range candidates[:limit] {
		items = append(items, ContextItem{
			Type:       "interaction",
			Timestamp:  c.row.CreatedAt.Format(time.RFC3339),
			UserPrompt: c.row.Prompt,
			AIResponse: c.row.Response,
		})
	}
	return items, nil
}

// History returns the user's most recent interactions, newest first.
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []models.Interaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Clear drops the user's entire history.
func (s *Service) Clear(ctx context.Context, userID uint) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Interaction{})
	if res.Error != nil {
		return res.Error
	}
	s.logger.InfoTag("Memory", "history cleared", map[string]interface{}{
		"user_id": userID,
		"removed": res.RowsAffected,
	})
	return nil
}

// tokenize lowercases and splits on everything that is not a letter or
// digit, deduplicating the result.
func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		terms[field] = struct{}{}
	}
	return terms
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for term := range a {
		if _, ok := b[term]; ok {
			count++
		}
	}
	return count
}
