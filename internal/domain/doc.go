// Package domain defines the core poll, vote and feedback types and the
// interfaces the application layer depends on.
//
// Concept-oriented files (poll.go, vote.go, feedback.go, ...) hold shared
// types and contracts. No storage or transport code lives here.
package domain
