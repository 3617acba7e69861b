package modelstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/leadscore/internal/classifier"
)

func sampleArtifact(orgID string, bias float64) *Artifact {
	return &Artifact{
		OrganizationID: orgID,
		TrainedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:        []string{"age", "source"},
		Model:          &classifier.LogisticRegression{Weights: []float64{0.5, -0.25}, Bias: bias},
		Scaler:         &classifier.StandardScaler{Mean: []float64{40, 1}, Scale: []float64{10, 1}},
		Encoders: map[string]*classifier.LabelEncoder{
			"source": classifier.FitLabelEncoder([]string{"web", "referral"}),
		},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	want := sampleArtifact("org-1", 0.1)
	require.NoError(t, store.Save(ctx, "org-1", want))

	got, err := store.Load(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, got.Version)
	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Scaler, got.Scaler)
	assert.Equal(t, want.Encoders["source"].Classes, got.Encoders["source"].Classes)
	assert.True(t, want.TrainedAt.Equal(got.TrainedAt))
	assert.Equal(t, 0, want.Version, "Save must not mutate the caller's artifact")
}

func TestFileStore_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_OverwriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "org-1", sampleArtifact("org-1", 0.1)))
	require.NoError(t, store.Save(ctx, "org-1", sampleArtifact("org-1", 0.9)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "org-1.model.json", entries[0].Name())

	got, err := store.Load(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Model.Bias)
}

func TestFileStore_ConcurrentReadersSeeWholeArtifacts(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "org-1", sampleArtifact("org-1", 0)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := store.Save(ctx, "org-1", sampleArtifact("org-1", float64(i))); err != nil {
				t.Errorf("save: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			a, err := store.Load(ctx, "org-1")
			if err != nil {
				t.Errorf("load: %v", err)
				return
			}
			if err := a.Validate(); err != nil {
				t.Errorf("partial artifact observed: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestFileStore_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	var perr *PersistenceError
	err = store.Save(ctx, "../escape", sampleArtifact("x", 0))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save", perr.Op)

	incomplete := sampleArtifact("org-1", 0)
	incomplete.Scaler = nil
	assert.Error(t, store.Save(ctx, "org-1", incomplete))
	_, err = store.Load(ctx, "org-1")
	assert.ErrorIs(t, err, ErrNotFound, "rejected save must not publish anything")
}

func TestFileStore_CorruptBlob(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "org-1.model.json"), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background(), "org-1")
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memBlobs) PutModelBlob(_ context.Context, orgID string, blob []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[string][]byte)
	}
	m.blobs[orgID] = blob
	return nil
}

func (m *memBlobs) GetModelBlob(_ context.Context, orgID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[orgID]
	return b, ok, nil
}

func TestDatabaseStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDatabaseStore(&memBlobs{})

	_, err := store.Load(ctx, "org-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "org-1", sampleArtifact("org-1", 0.3)))
	got, err := store.Load(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Model.Bias)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": 99}`))
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis model store test")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	store := NewRedisStore(client, "leadscore:test:model:")
	defer store.Close()
	defer client.Del(ctx, "leadscore:test:model:org-1")

	_, err := store.Load(ctx, "org-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "org-1", sampleArtifact("org-1", 0.7)))
	got, err := store.Load(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.Model.Bias)
}
