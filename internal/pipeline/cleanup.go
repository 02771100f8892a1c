package pipeline

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
)

// CloseConnections closes every distinct connection once, even when several
// roles share it. Connections are compared by identity, so implementations
// must be pointer types. Every connection is attempted; failures are joined.
func CloseConnections(conns ...llm.Connection) (int, error) {
	seen := make(map[llm.Connection]struct{}, len(conns))
	var errs []error
	closed := 0
	for _, c := range conns {
		if c == nil {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		closed++
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s connection: %w", c.Provider(), err))
		}
	}
	return closed, errors.Join(errs...)
}
