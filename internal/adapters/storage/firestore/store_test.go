package firestore_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/adapters/storage/firestore"
	"github.com/PabloGalante/travel-agent/internal/adapters/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	store, err := firestore.NewStore(context.Background(), "travel-agent-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storetest.Run(t, store)
}
