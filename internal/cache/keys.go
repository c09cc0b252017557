package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("vidresolve:job:%s:status", jobID)
}

// JobDetailKey holds the rendered detail of a finished job.
func JobDetailKey(jobID uuid.UUID) string {
	return fmt.Sprintf("vidresolve:job:%s:detail", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("vidresolve:ratelimit:%s", keyPrefix)
}

// JobKeys lists every cache key derived from a job.
func JobKeys(jobID uuid.UUID) []string {
	return []string{JobStatusKey(jobID), JobDetailKey(jobID)}
}
