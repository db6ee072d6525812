// Package app provides the application service layer.
//
// Orchestrates use cases: poll creation, vote casting, live subscriptions, feedback and stats.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
