package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MinPollOptions   = 2
	DefaultActorName = "Anonymous"
)

// Poll is a question with a fixed, ordered list of options and the live
// tally for each. Version starts at 0 and grows by one per applied vote.
type Poll struct {
	ID            string
	Question      string
	Options       []string
	Category      Category
	Tally         []int64
	TotalVoters   int64
	CreatedBy     string
	CreatedByName string
	CreatedAt     time.Time
	Version       int64
}

// Clone returns a deep copy so callers never share tally slices.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.Tally = append([]int64(nil), p.Tally...)
	return &c
}

func (p *Poll) HasOption(index int) bool {
	return index >= 0 && index < len(p.Options)
}

func (p *Poll) Snapshot() Snapshot {
	return Snapshot{
		PollID:      p.ID,
		Version:     p.Version,
		Tally:       append([]int64(nil), p.Tally...),
		TotalVoters: p.TotalVoters,
	}
}

// NewPoll is the creator-supplied part of a poll.
type NewPoll struct {
	Question      string
	Options       []string
	Category      string
	CreatedBy     string
	CreatedByName string
}

// PollDraft is a validated NewPoll, ready to be stored.
type PollDraft struct {
	Question      string
	Options       []string
	Category      Category
	CreatedBy     string
	CreatedByName string
}

// Validate trims every text field and checks the poll can be created.
// Failures wrap ErrInvalidPoll.
func (n NewPoll) Validate() (PollDraft, error) {
	question := strings.TrimSpace(n.Question)
	if question == "" {
		return PollDraft{}, fmt.Errorf("%w: question must not be empty", ErrInvalidPoll)
	}

	if len(n.Options) < MinPollOptions {
		return PollDraft{}, fmt.Errorf("%w: at least %d options required, got %d", ErrInvalidPoll, MinPollOptions, len(n.Options))
	}

	options := make([]string, len(n.Options))
	for i, opt := range n.Options {
		options[i] = strings.TrimSpace(opt)
		if options[i] == "" {
			return PollDraft{}, fmt.Errorf("%w: option %d must not be empty", ErrInvalidPoll, i)
		}
	}

	category, err := ParseCategory(n.Category)
	if err != nil {
		return PollDraft{}, fmt.Errorf("%w: %v", ErrInvalidPoll, err)
	}

	name := strings.TrimSpace(n.CreatedByName)
	if name == "" {
		name = DefaultActorName
	}

	return PollDraft{
		Question:      question,
		Options:       options,
		Category:      category,
		CreatedBy:     strings.TrimSpace(n.CreatedBy),
		CreatedByName: name,
	}, nil
}

// Snapshot is the tally state of a poll at one version, as pushed to viewers.
type Snapshot struct {
	PollID      string
	Version     int64
	Tally       []int64
	TotalVoters int64
}

// Percentages returns each option's share of TotalVoters rounded to one
// decimal place. All zero while nobody has voted.
func (s Snapshot) Percentages() []float64 {
	out := make([]float64, len(s.Tally))
	if s.TotalVoters == 0 {
		return out
	}
	for i, n := range s.Tally {
		out[i] = math.Round(float64(n)*1000/float64(s.TotalVoters)) / 10
	}
	return out
}

// PollRepository stores poll definitions and their tallies.
type PollRepository interface {
	Create(ctx context.Context, draft PollDraft) (*Poll, error)
	Get(ctx context.Context, pollID string) (*Poll, error)
	// ApplyVote increments tally[optionIndex] and TotalVoters only if the
	// stored version equals expectedVersion, otherwise ErrVersionConflict.
	ApplyVote(ctx context.Context, pollID string, optionIndex int, expectedVersion int64) (*Poll, error)
	// List returns polls newest first. An empty category lists all.
	List(ctx context.Context, category Category) ([]*Poll, error)
}
