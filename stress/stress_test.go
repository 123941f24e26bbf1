package stress

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/config"
	"github.com/arota-fs/simfs/fsys"
)

func TestBucketDirAndFilePath(t *testing.T) {
	cfg := config.StressConfig{WorkspacePath: "/stress_suite"}
	assert.Equal(t, "/stress_suite/bucket_002", bucketDir(cfg, 2))
	assert.Equal(t, "/stress_suite/bucket_001/file_007.dat", filePath(cfg, 7, 3))
}

func mustMountedFS(t *testing.T) *fsys.FileSystem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, blockdev.CreateDisk(path, 4))

	dev, err := blockdev.OpenDisk(path)
	require.NoError(t, err)
	_, err = dev.Format()
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	fs := fsys.New()
	require.NoError(t, fs.Mount(path))
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestRunCompletesWithinDeadlineAndReportsNoErrors(t *testing.T) {
	fs := mustMountedFS(t)
	h := New(fs)

	cfg := config.StressConfig{
		Duration:        200 * time.Millisecond,
		FileCount:       4,
		ThreadCount:     2,
		WriteSize:       64,
		MonitorInterval: 50 * time.Millisecond,
		WorkspacePath:   "/stress_suite",
		CleanupAfter:    true,
		BucketCount:     2,
	}

	ok, err := h.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := fs.FileExists("/stress_suite")
	require.NoError(t, err)
	assert.False(t, exists, "CleanupAfter should remove the workspace")
}
