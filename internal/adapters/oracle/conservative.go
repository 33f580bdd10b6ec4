package oracle

import (
	"context"

	"github.com/example/foreman/internal/ports/secondary"
)

// Conservative is the oracle used when none is configured. Every pair is
// reported dependent, so batches always fall back to sequential dispatch and
// no two workers ever run concurrently on a guess.
type Conservative struct{}

// NewConservative creates the fallback oracle.
func NewConservative() *Conservative {
	return &Conservative{}
}

// Independent always reports the pair as dependent.
func (Conservative) Independent(ctx context.Context, a, b secondary.OracleQuery) (bool, error) {
	return false, nil
}

var _ secondary.IndependenceOracle = (*Conservative)(nil)
