// Package broadcast implements the subscription hub using the actor pattern.
//
// One goroutine owns the poll -> subscriber registry and is driven by a command channel.
// Voters hand snapshots over through a pending map and a wake-up signal, so a slow or vanished
// viewer can never hold up a vote. Each subscriber has a one-slot mailbox: the newest snapshot wins.
package broadcast
