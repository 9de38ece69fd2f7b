package store

import (
	"context"
	"fmt"
	"time"
)

// Feedback is one message a user sent to the developer with /feedback.
type Feedback struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaveFeedback archives a feedback message and fills in its ID and timestamp.
func (s *Store) SaveFeedback(ctx context.Context, fb *Feedback) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO feedback (id, conversation, sender_id, sender_name, text)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`,
		fb.Conversation, fb.SenderID, fb.SenderName, fb.Text,
	).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the most recent feedback, newest first.
func (s *Store) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation, sender_id, sender_name, text, created_at
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.Conversation, &fb.SenderID, &fb.SenderName, &fb.Text, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
