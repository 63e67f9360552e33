package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuizContainer links one content item to its generated question sets.
// It is created once and never transitions.
type QuizContainer struct {
	ID            uuid.UUID `json:"id"`
	ContentItemID uuid.UUID `json:"content_item_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewQuizContainer creates a container for the given content item.
func NewQuizContainer(contentItemID uuid.UUID) *QuizContainer {
	return &QuizContainer{
		ID:            uuid.New(),
		ContentItemID: contentItemID,
		CreatedAt:     time.Now().UTC(),
	}
}
