// Package queue defines message payloads exchanged over the message broker
// and the consumer that feeds them to the parse pipeline.
package queue

import "time"

// ParseQueue is the durable queue carrying CV parse jobs.
const ParseQueue = "profile.parse_cv"

// ParseCVJob is published when a source file has been moved to processing.
// The consumer only needs the ids: the file row holds the text and the
// processing state authorizes the run.
type ParseCVJob struct {
	SourceFileID string    `json:"source_file_id"`
	UserID       string    `json:"user_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
