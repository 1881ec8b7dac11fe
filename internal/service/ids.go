// Package service holds the small cross-cutting helpers the hybrid memory
// engine depends on: UUID4 id generation, RFC3339 timestamps, and the
// uniform {status, message, ...} response envelope. Grounded on the
// teacher's habit of generating ids with google/uuid and timestamping rows
// with time.Now() throughout its store and service layers.
package service

import "github.com/google/uuid"

// NewID returns a new random UUID4 string.
func NewID() string {
	return uuid.NewString()
}
