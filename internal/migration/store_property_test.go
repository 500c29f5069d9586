package migration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kilnhq/migrator/internal/database"
)

// newFileBackedTestStore uses a temp-file SQLite database rather than
// :memory: so every connection in the pool sees the same data, which
// matters once a test drives the store from more than one goroutine.
func newFileBackedTestStore(t *testing.T) *DBStore {
	path := filepath.Join(t.TempDir(), "migrator-property.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewDBStore(db, database.DefaultPoolConfig(), "schema_migrations", nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Disconnect(context.Background()) })
	return store
}

// TestDBStore_ReservationIsExclusive checks the property that underlies the
// whole reservation scheme: for any number of concurrent actors racing to
// apply the same migration id, exactly one sees StepSuccess and the rest
// see StepIgnored, no matter how many actors there are.
func TestDBStore_ReservationIsExclusive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly one concurrent MigrateUp succeeds", prop.ForAll(
		func(n int) bool {
			store := newFileBackedTestStore(t)
			k := mustSQLKind(t, 1, "race", "select 1;", "select 1;")
			d := Descriptor{ID: 1, Name: "race", KindTag: SQLKindTag, Transactional: true}

			var wg sync.WaitGroup
			results := make([]StepResult, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = store.MigrateUp(context.Background(), d, k)
				}(i)
			}
			wg.Wait()

			successes := 0
			for i := 0; i < n; i++ {
				if errs[i] != nil {
					return false
				}
				if results[i] == StepSuccess {
					successes++
				}
			}
			return successes == 1
		},
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}
