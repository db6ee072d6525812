package memory

import (
	"context"

	"github.com/pscheid92/pollpulse/internal/domain"
)

// FeedbackLedger implements domain.FeedbackLedger on a Store.
type FeedbackLedger struct {
	store *Store
}

var _ domain.FeedbackLedger = (*FeedbackLedger)(nil)

func (l *FeedbackLedger) Append(_ context.Context, draft domain.FeedbackDraft) (*domain.FeedbackEntry, error) {
	entry := &domain.FeedbackEntry{
		ID:        newID(),
		Title:     draft.Title,
		Content:   draft.Content,
		Category:  draft.Category,
		Rating:    draft.Rating,
		Author:    draft.Author,
		UserID:    draft.UserID,
		Status:    domain.FeedbackStatusActive,
		CreatedAt: l.store.clock.Now().UTC(),
	}

	l.store.feedbackMu.Lock()
	defer l.store.feedbackMu.Unlock()

	l.store.feedback = append(l.store.feedback, entry)
	c := *entry
	return &c, nil
}

// List walks the append order backwards, which is newest first.
func (l *FeedbackLedger) List(_ context.Context, category domain.Category) ([]*domain.FeedbackEntry, error) {
	l.store.feedbackMu.RLock()
	defer l.store.feedbackMu.RUnlock()

	out := make([]*domain.FeedbackEntry, 0, len(l.store.feedback))
	for i := len(l.store.feedback) - 1; i >= 0; i-- {
		e := l.store.feedback[i]
		if category != "" && e.Category != category {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
