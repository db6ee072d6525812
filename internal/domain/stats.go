package domain

import "math"

// Stats is the dashboard summary across all polls and feedback.
type Stats struct {
	TotalPolls      int
	TotalVotes      int64
	ActivePollsters int
	FeedbackCount   int
	AverageRating   float64
}

// ComputeStats folds polls and feedback into Stats. AverageRating is
// rounded to one decimal and zero when there is no feedback.
func ComputeStats(polls []*Poll, feedback []*FeedbackEntry) Stats {
	stats := Stats{TotalPolls: len(polls), FeedbackCount: len(feedback)}

	creators := make(map[string]struct{})
	for _, p := range polls {
		stats.TotalVotes += p.TotalVoters
		if p.CreatedBy != "" {
			creators[p.CreatedBy] = struct{}{}
		}
	}
	stats.ActivePollsters = len(creators)

	if len(feedback) > 0 {
		sum := 0
		for _, f := range feedback {
			sum += f.Rating
		}
		stats.AverageRating = math.Round(float64(sum)*10/float64(len(feedback))) / 10
	}

	return stats
}
