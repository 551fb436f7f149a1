package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Path helpers ---

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		wantErr    bool
	}{
		{"projects/p1/jobs/j1", "projects/p1/jobs", "j1", false},
		{"webhooks/abc", "webhooks", "abc", false},
		{"retention/c1", "retention", "c1", false},
		{"single", "", "", true},
		{"trailing/", "", "", true},
		{"/leading", "", "", true},
		{"projects//jobs/j1", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			collection, id, err := store.SplitPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.collection, collection)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestJobPath(t *testing.T) {
	jobID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "projects/p1/jobs/11111111-1111-1111-1111-111111111111", store.JobPath("p1", jobID))
	assert.Equal(t, "projects/p1/jobs", store.JobCollection("p1"))
}

// --- Encode / Decode ---

func TestEncodeDecode_Job(t *testing.T) {
	job := models.Job{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		ProjectID:  "p1",
		Status:     models.JobStatusQueued,
	}

	doc, err := store.Encode(&job)
	require.NoError(t, err)
	assert.Equal(t, "queued", doc["status"])
	assert.Equal(t, job.CustomerID.String(), doc["customerId"])

	var decoded models.Job
	require.NoError(t, store.Decode(doc, &decoded))
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Status, decoded.Status)
}

// --- CRUD ---

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	id, err := s.CreateDocument(ctx, "webhooks/w1", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "w1", id)

	doc, err := s.GetDocument(ctx, "webhooks/w1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", doc["url"])
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateDocument(ctx, "webhooks/w1", map[string]any{"url": "a"})
	require.NoError(t, err)

	_, err = s.CreateDocument(ctx, "webhooks/w1", map[string]any{"url": "b"})
	assert.ErrorIs(t, err, store.ErrDuplicatePath)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := store.NewMemoryStore()

	_, err := s.GetDocument(context.Background(), "webhooks/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_SetReplaces(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "retention/c1", map[string]any{"jobRetentionDays": 10, "extra": true}))
	require.NoError(t, s.SetDocument(ctx, "retention/c1", map[string]any{"jobRetentionDays": 20}))

	doc, err := s.GetDocument(ctx, "retention/c1")
	require.NoError(t, err)
	assert.Equal(t, float64(20), doc["jobRetentionDays"])
	assert.NotContains(t, doc, "extra")
}

func TestMemoryStore_UpdateMerges(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "retention/c1", map[string]any{"a": 1, "b": 2}))
	require.NoError(t, s.UpdateDocument(ctx, "retention/c1", map[string]any{"b": 3}))

	doc, err := s.GetDocument(ctx, "retention/c1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), doc["a"])
	assert.Equal(t, float64(3), doc["b"])

	err = s.UpdateDocument(ctx, "retention/missing", map[string]any{"a": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "webhooks/w1", map[string]any{"url": "a"}))
	require.NoError(t, s.DeleteDocument(ctx, "webhooks/w1"))

	_, err := s.GetDocument(ctx, "webhooks/w1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "webhooks/w1"), store.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "webhooks/w1", map[string]any{"url": "a"}))

	doc, err := s.GetDocument(ctx, "webhooks/w1")
	require.NoError(t, err)
	doc["url"] = "tampered"

	reloaded, err := s.GetDocument(ctx, "webhooks/w1")
	require.NoError(t, err)
	assert.Equal(t, "a", reloaded["url"])
}

// --- Queries ---

func seedJobs(t *testing.T, s store.DocumentStore) {
	t.Helper()
	ctx := context.Background()
	docs := []map[string]any{
		{"id": "j1", "status": "queued", "recordCount": 100, "tags": []string{"alpha", "beta"}},
		{"id": "j2", "status": "running", "recordCount": 500, "tags": []string{"beta"}},
		{"id": "j3", "status": "completed", "recordCount": 900, "tags": []string{"gamma"}},
	}
	for _, d := range docs {
		require.NoError(t, s.SetDocument(ctx, "projects/p1/jobs/"+d["id"].(string), d))
	}
	// sibling collection must never leak into results
	require.NoError(t, s.SetDocument(ctx, "projects/p2/jobs/other", map[string]any{"status": "queued"}))
}

func TestMemoryStore_QueryOperators(t *testing.T) {
	s := store.NewMemoryStore()
	seedJobs(t, s)

	tests := []struct {
		name string
		cond store.Condition
		want []string
	}{
		{"equal", store.Condition{Field: "status", Operator: store.OpEqual, Value: "running"}, []string{"j2"}},
		{"not-equal", store.Condition{Field: "status", Operator: store.OpNotEqual, Value: "queued"}, []string{"j2", "j3"}},
		{"less", store.Condition{Field: "recordCount", Operator: store.OpLess, Value: 500}, []string{"j1"}},
		{"less-or-equal", store.Condition{Field: "recordCount", Operator: store.OpLessOrEqual, Value: 500}, []string{"j1", "j2"}},
		{"greater", store.Condition{Field: "recordCount", Operator: store.OpGreater, Value: 500}, []string{"j3"}},
		{"greater-or-equal", store.Condition{Field: "recordCount", Operator: store.OpGreaterOrEqual, Value: 500}, []string{"j2", "j3"}},
		{"array-contains", store.Condition{Field: "tags", Operator: store.OpArrayContains, Value: "beta"}, []string{"j1", "j2"}},
		{"array-contains-any", store.Condition{Field: "tags", Operator: store.OpArrayContainsAny, Value: []string{"alpha", "gamma"}}, []string{"j1", "j3"}},
		{"in", store.Condition{Field: "status", Operator: store.OpIn, Value: []string{"queued", "completed"}}, []string{"j1", "j3"}},
		{"not-in", store.Condition{Field: "status", Operator: store.OpNotIn, Value: []string{"queued", "completed"}}, []string{"j2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.QueryDocuments(context.Background(), "projects/p1/jobs", []store.Condition{tt.cond})
			require.NoError(t, err)

			var got []string
			for _, d := range docs {
				got = append(got, d["id"].(string))
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestMemoryStore_QueryMultipleConditions(t *testing.T) {
	s := store.NewMemoryStore()
	seedJobs(t, s)

	docs, err := s.QueryDocuments(context.Background(), "projects/p1/jobs", []store.Condition{
		{Field: "recordCount", Operator: store.OpGreater, Value: 100},
		{Field: "tags", Operator: store.OpArrayContains, Value: "beta"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "j2", docs[0]["id"])
}

func TestMemoryStore_QueryMissingFieldNeverMatches(t *testing.T) {
	s := store.NewMemoryStore()
	seedJobs(t, s)

	docs, err := s.QueryDocuments(context.Background(), "projects/p1/jobs", []store.Condition{
		{Field: "nope", Operator: store.OpNotEqual, Value: "x"},
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStore_QueryInvalidOperator(t *testing.T) {
	s := store.NewMemoryStore()

	_, err := s.QueryDocuments(context.Background(), "projects/p1/jobs", []store.Condition{
		{Field: "status", Operator: "~=", Value: "x"},
	})
	assert.Error(t, err)
}

// --- Transactional update ---

func TestMemoryStore_UpdateDocumentTxn(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "projects/p1/jobs/j1", map[string]any{"count": 0}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateDocumentTxn(ctx, "projects/p1/jobs/j1", func(current map[string]any) (map[string]any, error) {
				current["count"] = current["count"].(float64) + 1
				return current, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.GetDocument(ctx, "projects/p1/jobs/j1")
	require.NoError(t, err)
	assert.Equal(t, float64(20), doc["count"])
}

func TestMemoryStore_UpdateDocumentTxn_ErrorAborts(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "projects/p1/jobs/j1", map[string]any{"status": "queued"}))

	boom := errors.New("boom")
	err := s.UpdateDocumentTxn(ctx, "projects/p1/jobs/j1", func(current map[string]any) (map[string]any, error) {
		current["status"] = "running"
		return current, boom
	})
	assert.ErrorIs(t, err, boom)

	doc, err := s.GetDocument(ctx, "projects/p1/jobs/j1")
	require.NoError(t, err)
	assert.Equal(t, "queued", doc["status"])
}

func TestMemoryStore_UpdateDocumentTxn_NotFound(t *testing.T) {
	s := store.NewMemoryStore()

	err := s.UpdateDocumentTxn(context.Background(), "projects/p1/jobs/missing", func(current map[string]any) (map[string]any, error) {
		return current, nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
