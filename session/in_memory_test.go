package session

import (
	"testing"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Conformance(t *testing.T) {
	testutil.RunStoreConformance(t, func(t *testing.T) core.SessionStore {
		return NewInMemoryStore()
	})
}
