package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	polls := []*Poll{
		{ID: "p1", CreatedBy: "alice", TotalVoters: 3},
		{ID: "p2", CreatedBy: "alice", TotalVoters: 2},
		{ID: "p3", CreatedBy: "bob", TotalVoters: 0},
	}
	feedback := []*FeedbackEntry{{Rating: 5}, {Rating: 4}, {Rating: 4}}

	stats := ComputeStats(polls, feedback)

	assert.Equal(t, 3, stats.TotalPolls)
	assert.Equal(t, int64(5), stats.TotalVotes)
	assert.Equal(t, 2, stats.ActivePollsters)
	assert.Equal(t, 3, stats.FeedbackCount)
	assert.InDelta(t, 4.3, stats.AverageRating, 1e-9)
}

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil, nil))
}
