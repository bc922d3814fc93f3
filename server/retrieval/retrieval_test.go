package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Deterministic toy embedding keyed off the text length.
	return []float32{float32(len(text)), 1, 0}, nil
}

type stubDriver struct {
	docs      []string
	searchErr error
	insertErr error

	inserted   []string
	collection string
	lastLimit  int
}

func (s *stubDriver) Insert(_ context.Context, collection, content string, _ []float32) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.collection = collection
	s.inserted = append(s.inserted, content)
	return nil
}

func (s *stubDriver) Search(_ context.Context, collection string, _ []float32, limit int) ([]string, error) {
	s.collection = collection
	s.lastLimit = limit
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.docs, nil
}

func (s *stubDriver) Close() error { return nil }

func TestIndexQuery_ReturnsDriverResults(t *testing.T) {
	driver := &stubDriver{docs: []string{"doc a", "doc b"}}
	index := NewIndex(driver, &stubEmbedder{}, "health_docs")

	docs := index.Query(context.Background(), "malaria", 2)
	assert.Equal(t, []string{"doc a", "doc b"}, docs)
	assert.Equal(t, "health_docs", driver.collection)
	assert.Equal(t, 2, driver.lastLimit)
}

func TestIndexQuery_DefaultTopK(t *testing.T) {
	driver := &stubDriver{}
	index := NewIndex(driver, &stubEmbedder{}, "health_docs")

	index.Query(context.Background(), "malaria", 0)
	assert.Equal(t, DefaultTopK, driver.lastLimit)

	index.Query(context.Background(), "malaria", -5)
	assert.Equal(t, DefaultTopK, driver.lastLimit)
}

func TestIndexQuery_EmbedderFailureIsEmpty(t *testing.T) {
	index := NewIndex(&stubDriver{docs: []string{"never returned"}},
		&stubEmbedder{err: fmt.Errorf("embedding endpoint down")}, "health_docs")

	docs := index.Query(context.Background(), "malaria", 3)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestIndexQuery_DriverFailureIsEmpty(t *testing.T) {
	index := NewIndex(&stubDriver{searchErr: fmt.Errorf("db locked")},
		&stubEmbedder{}, "health_docs")

	docs := index.Query(context.Background(), "malaria", 3)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestIndexAdd_ChunksAndStores(t *testing.T) {
	driver := &stubDriver{}
	index := NewIndex(driver, &stubEmbedder{}, "health_docs")

	para1 := strings.TrimSpace(strings.Repeat("Treat fever with rest. ", 14))
	para2 := strings.TrimSpace(strings.Repeat("Seek care for danger signs. ", 14))
	count, err := index.Add(context.Background(), para1+"\n\n"+para2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, driver.inserted, 2)
	assert.Equal(t, "health_docs", driver.collection)
}

func TestIndexAdd_EmbedderFailureSurfaces(t *testing.T) {
	index := NewIndex(&stubDriver{}, &stubEmbedder{err: fmt.Errorf("down")}, "health_docs")

	_, err := index.Add(context.Background(), "short document")
	require.Error(t, err)
}

func TestIndexAdd_InsertFailureSurfaces(t *testing.T) {
	index := NewIndex(&stubDriver{insertErr: fmt.Errorf("disk full")},
		&stubEmbedder{}, "health_docs")

	_, err := index.Add(context.Background(), "short document")
	require.Error(t, err)
}
