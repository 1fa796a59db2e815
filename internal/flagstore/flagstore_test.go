package flagstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagName(t *testing.T) {
	assert.Equal(t, "lr_register.flag", FlagName("lr"))
}

func TestDirStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	st, err := NewDirStore(filepath.Join(t.TempDir(), "flags"))
	require.NoError(t, err)

	ok, err := st.Exists(ctx, "lr_register.flag")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Put(ctx, "lr_register.flag", []byte("run-1")))
	require.NoError(t, st.Put(ctx, "lr_register.flag", []byte("run-2")))

	ok, err = st.Exists(ctx, "lr_register.flag")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(st.Location("lr_register.flag"))
	require.NoError(t, err)
	assert.Equal(t, "run-2", string(data))

	entries, err := os.ReadDir(st.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "atomic writes must not leave temp files behind")

	require.NoError(t, st.Delete(ctx, "lr_register.flag"))
	require.NoError(t, st.Delete(ctx, "lr_register.flag"))
	ok, _ = st.Exists(ctx, "lr_register.flag")
	assert.False(t, ok)
}

func TestWriteFileAtomicCreatesParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "x.json")
	require.NoError(t, WriteFileAtomic(target, []byte("{}"), 0o644))

	ok, err := FileExists(target)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewS3StoreValidation(t *testing.T) {
	_, err := NewS3Store(S3Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	st, err := NewS3Store(S3Config{Endpoint: "https://minio.local:9000", Bucket: "flags", Prefix: "pipeline"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(st.Location("lr_register.flag"), "flags/pipeline/lr_register.flag"))
}
