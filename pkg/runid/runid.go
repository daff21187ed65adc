// Package runid generates run/session identifiers, grounded on the
// teacher's pkg/qwen/client.go use of google/uuid's uuid.NewString() for
// event ids.
package runid

import "github.com/google/uuid"

// New returns a fresh UUID string for a pipeline run.
func New() string {
	return uuid.NewString()
}
