package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestDecodeList_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		hasMore bool
	}{
		{"bare array", `[{"id":"a","url":"u"},{"id":"b","url":"u"}]`, 2, false},
		{"jobs envelope", `{"jobs":[{"id":"a"}]}`, 1, false},
		{"videos envelope", `{"videos":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, 3, false},
		{"paged items", `{"items":[{"id":"a"}],"has_more":true}`, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, hasMore, err := decodeList([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, list, tt.want)
			assert.Equal(t, tt.hasMore, hasMore)
		})
	}

	_, _, err := decodeList([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNormalize_DropsBlankAndDuplicateIDs(t *testing.T) {
	// Given a list with a blank id and a repeated id
	list := []Job{{ID: "a"}, {ID: " "}, {ID: "b"}, {ID: "a", Title: "dup"}}

	// When normalized
	out := Normalize(list, nil)

	// Then fetch order is kept and the first occurrence wins
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Empty(t, out[0].Title)
	assert.Equal(t, "b", out[1].ID)
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.json")
	writeFile(t, path, `{"videos":[{"id":"v1","url":"https://example.com/1","title":"One"}]}`)

	src := NewFileSource(path)
	list, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Job{ID: "v1", URL: "https://example.com/1", Title: "One"}, list[0])
	assert.Equal(t, "file:"+path, src.Identity())

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json")).Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPSource_Paginates(t *testing.T) {
	// Given a server returning three pages of two jobs
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("page_size"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		p := strconv.Itoa(page)
		more := "true"
		if page >= 3 {
			more = "false"
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"p` + p + `a"},{"id":"p` + p + `b"}],"has_more":` + more + `}`))
	}))
	defer server.Close()

	src := NewHTTPSource(am.WorkSourceConfig{Kind: "http", URL: server.URL, PageSize: 2}, "", nil)

	// When fetched
	list, err := src.Fetch(context.Background())

	// Then every page is concatenated in order
	require.NoError(t, err)
	require.Len(t, list, 6)
	assert.Equal(t, "p1a", list[0].ID)
	assert.Equal(t, "p3b", list[5].ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewHTTPSource(am.WorkSourceConfig{Kind: "http", URL: server.URL}, "", nil)
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
}

func TestNewSource_Kinds(t *testing.T) {
	src, err := NewSource(am.WorkSourceConfig{Kind: "file", Path: "x.json"}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, src)

	src, err = NewSource(am.WorkSourceConfig{Kind: "http", URL: "http://localhost"}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	_, err = NewSource(am.WorkSourceConfig{Kind: "ftp"}, "", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestCache_PutGetRemove(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache"))

	_, _, ok, err := cache.Get("file:a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put("file:a", []Job{{ID: "1"}, {ID: "2"}}))
	list, fetchedAt, ok, err := cache.Get("file:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, list, 2)
	assert.False(t, fetchedAt.IsZero())

	// Different identities never share a cache file
	assert.NotEqual(t, cache.Path("file:a"), cache.Path("file:b"))
	_, _, ok, _ = cache.Get("file:b")
	assert.False(t, ok)

	require.NoError(t, cache.Remove("file:a"))
	require.NoError(t, cache.Remove("file:a"))
	_, _, ok, _ = cache.Get("file:a")
	assert.False(t, ok)
}

// countingSource wraps a list and counts Fetch calls
type countingSource struct {
	list  []Job
	err   error
	calls int
}

func (s *countingSource) Identity() string { return "test:counting" }

func (s *countingSource) Fetch(ctx context.Context) ([]Job, error) {
	s.calls++
	return s.list, s.err
}

func TestLoader_FetchesOnceThenUsesCache(t *testing.T) {
	// Given an empty cache
	src := &countingSource{list: []Job{{ID: "a"}, {ID: "b"}}}
	loader := NewLoader(src, NewCache(t.TempDir()), nil)

	// When loading twice
	first, err := loader.Load(context.Background(), false)
	require.NoError(t, err)
	src.list = append(src.list, Job{ID: "c"})
	second, err := loader.Load(context.Background(), false)
	require.NoError(t, err)

	// Then the source is contacted once and the cached list is returned
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)

	// When refresh is requested
	third, err := loader.Load(context.Background(), true)
	require.NoError(t, err)

	// Then the new list is fetched
	assert.Equal(t, 2, src.calls)
	assert.Len(t, third, 3)
}

func TestLoader_RefreshFailureFallsBackToCache(t *testing.T) {
	src := &countingSource{list: []Job{{ID: "a"}}}
	loader := NewLoader(src, NewCache(t.TempDir()), nil)
	_, err := loader.Load(context.Background(), false)
	require.NoError(t, err)

	src.err = errors.New("unreachable")
	list, err := loader.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoader_NoCacheAndFetchFailureIsFatal(t *testing.T) {
	src := &countingSource{err: errors.New("unreachable")}
	loader := NewLoader(src, NewCache(t.TempDir()), nil)

	_, err := loader.Load(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestPending_KeepsFetchOrder(t *testing.T) {
	list := []Job{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	done := map[string]bool{"a": true, "c": true}

	pending := Pending(list, func(id string) bool { return done[id] })

	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].ID)
	assert.Equal(t, "d", pending[1].ID)
}

func TestLoader_PreviewNeverWritesCache(t *testing.T) {
	// Given an empty cache
	cache := NewCache(t.TempDir())
	src := &countingSource{list: []Job{{ID: "a"}, {ID: "a"}, {ID: "b"}}}
	loader := NewLoader(src, cache, nil)

	// When previewing
	list, err := loader.Preview(context.Background(), false)

	// Then the list is normalized and nothing is cached
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, _, ok, err := cache.Get(src.Identity())
	require.NoError(t, err)
	assert.False(t, ok)
}
