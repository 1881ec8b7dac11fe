package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newManager(t *testing.T, enabled bool, interval time.Duration, retention int) (*Manager, *fakeClock, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	backupDir := filepath.Join(root, "backups")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "memory.sqlite"), []byte("fake db contents"), 0o644))

	m := New(Config{
		DataDir:        dataDir,
		BackupDir:      backupDir,
		Enabled:        enabled,
		Interval:       interval,
		RetentionCount: retention,
	}, log.Default())
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m.clock = clock
	return m, clock, backupDir
}

func TestTick_Disabled_NeverCreatesSnapshot(t *testing.T) {
	m, _, backupDir := newManager(t, false, time.Hour, 5)
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Empty(t, names)
	_, err = os.Stat(backupDir)
	require.True(t, os.IsNotExist(err))
}

func TestTick_FirstCallAlwaysCreatesSnapshot(t *testing.T) {
	m, _, _ := newManager(t, true, time.Hour, 5)
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 1)

	_, has := m.LastTimestamp()
	require.True(t, has)
}

func TestTick_SecondCallBeforeIntervalSkips(t *testing.T) {
	m, clock, _ := newManager(t, true, time.Hour, 5)
	m.Tick(context.Background())
	clock.now = clock.now.Add(10 * time.Minute)
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 1)
}

func TestTick_AfterIntervalElapsedCreatesAnotherSnapshot(t *testing.T) {
	m, clock, _ := newManager(t, true, time.Hour, 5)
	m.Tick(context.Background())
	clock.now = clock.now.Add(2 * time.Hour)
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 2)
}

func TestTick_RetentionPrunesOldestSnapshots(t *testing.T) {
	m, clock, _ := newManager(t, true, time.Hour, 2)
	for i := 0; i < 3; i++ {
		m.Tick(context.Background())
		clock.now = clock.now.Add(2 * time.Hour)
	}

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 2)
}

func TestInvalidateCache_ForcesImmediateSnapshotOnNextTick(t *testing.T) {
	m, clock, _ := newManager(t, true, time.Hour, 5)
	m.Tick(context.Background())
	clock.now = clock.now.Add(time.Minute)

	m.InvalidateCache()
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 2)
}

func TestList_ReturnsNewestFirst(t *testing.T) {
	m, clock, _ := newManager(t, true, time.Hour, 5)
	m.Tick(context.Background())
	clock.now = clock.now.Add(2 * time.Hour)
	m.Tick(context.Background())

	names, err := m.List()
	require.NoError(t, err)
	require.Len(t, names, 2)
	require.True(t, names[0] > names[1])
}
