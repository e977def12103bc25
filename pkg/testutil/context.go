package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	id "backpack/pkg/domain"
	"backpack/pkg/requestcontext"
)

// FixedTime is the logical clock tests pin requests to.
var FixedTime = time.Date(2024, time.April, 20, 16, 20, 0, 0, time.UTC)

// Context returns a background context with a request id and FixedTime.
// This mirrors what the CLI does before invoking a service.
func Context() context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), "req-test")
	return requestcontext.WithTime(ctx, FixedTime)
}

// ContextAs returns Context with the acting principal set.
func ContextAs(p id.Principal) context.Context {
	return requestcontext.WithPrincipal(Context(), p)
}

// MustPrincipal parses a principal, failing the test on error.
func MustPrincipal(t *testing.T, raw string) id.Principal {
	t.Helper()
	p, err := id.ParsePrincipal(raw)
	require.NoError(t, err, "failed to parse principal %q", raw)
	return p
}

// MustBackpackID parses a backpack id, failing the test on error.
func MustBackpackID(t *testing.T, raw string) id.BackpackID {
	t.Helper()
	backpackID, err := id.ParseBackpackID(raw)
	require.NoError(t, err, "failed to parse backpack id %q", raw)
	return backpackID
}
