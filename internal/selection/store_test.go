package selection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	testCases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindFile, false},
		{"file", KindFile, false},
		{"redis", KindRedis, false},
		{"memory", KindMemory, false},
		{"cookie", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v, err := s.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Save(ctx, "user-1", "org-1"))
	require.NoError(t, s.Save(ctx, "user-2", "org-2"))
	v, _ = s.Load(ctx, "user-1")
	assert.Equal(t, "org-1", v)
}

func TestFileStore_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	v, err := s.Load(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, v, "missing file means no selection")

	require.NoError(t, s.Save(ctx, "", "org-1"))
	require.NoError(t, s.Save(ctx, "", "org-2"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, err = reopened.Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "org-2", v)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), Key)
}

func TestFileStore_KeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark"}`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "", "org-9"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"theme": "dark"`)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(ctx, "")
	assert.Error(t, err)

	require.NoError(t, s.Save(ctx, "", "org-1"))
	v, err := s.Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "org-1", v)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisStore(client, time.Hour)
	v, err := s.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Save(ctx, "user-1", "org-1"))
	v, err = s.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", v)

	got, err := mr.Get("orgscope:currentOrganizationId:user-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", got)
	assert.Equal(t, time.Hour, mr.TTL("orgscope:currentOrganizationId:user-1"))

	other, err := s.Load(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	s := NewRedisStore(client, 0)
	_, err = s.Load(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestWithHint(t *testing.T) {
	ctx := context.Background()
	next := NewMemoryStore()
	require.NoError(t, next.Save(ctx, "u1", "stored"))

	assert.Same(t, next, WithHint(next, ""))

	s := WithHint(next, "hinted")
	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hinted", got)

	require.NoError(t, s.Save(ctx, "u1", "switched"))
	got, err = s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "switched", got)

	got, err = WithHint(nil, "h").Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "h", got)
}

func TestWithDefault(t *testing.T) {
	ctx := context.Background()
	next := NewMemoryStore()
	assert.Same(t, next, WithDefault(next, ""))

	s := WithDefault(next, "claim")
	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "claim", got)

	require.NoError(t, s.Save(ctx, "u1", "switched"))
	got, err = s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "switched", got)
}
