package agent

import (
	"fmt"
	"time"
)

// NewSource builds the decision source named by kind: "heuristic", or
// "remote" which needs url.
func NewSource(kind, url string, timeout time.Duration) (DecisionSource, error) {
	switch kind {
	case "", "heuristic":
		return Heuristic{}, nil
	case "remote":
		if url == "" {
			return nil, fmt.Errorf("remote decision source needs a url")
		}
		return NewRemote(url, timeout, Heuristic{}), nil
	default:
		return nil, fmt.Errorf("unknown decision source: %s", kind)
	}
}
