package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFilter = filterOptions{capacity: 1000, fpr: 0.001}

func writeLedger(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseEvent(t *testing.T) {
	e, err := parseEvent(" ev-1 , 3 , 20 ")
	require.NoError(t, err)
	assert.Equal(t, event{id: "ev-1", warehouseID: 3, units: 20}, e)

	for _, line := range []string{
		"ev-1,3",
		"ev-1,3,20,1",
		",3,20",
		"ev-1,x,20",
		"ev-1,3,x",
		"ev-1,3,0",
		"ev-1,3,-5",
	} {
		_, err := parseEvent(line)
		assert.Error(t, err, line)
	}
}

func TestAggregate_DeduplicatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeLedger(t, dir, "a.gz",
			"# export 1",
			"ev-1,1,10",
			"ev-2,2,5",
			"",
			"ev-3,1,7",
		),
		writeLedger(t, dir, "b.gz",
			"ev-2,2,5",
			"ev-3,1,7",
			"ev-4,3,100",
		),
		writeLedger(t, dir, "c.gz",
			"ev-3,1,7",
			"ev-5,2,1",
		),
	}

	deltas, err := aggregate(t.Context(), files, testFilter)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 17, 2: 6, 3: 100}, deltas)
}

func TestAggregate_SingleFile(t *testing.T) {
	path := writeLedger(t, t.TempDir(), "a.gz", "ev-1,1,10", "ev-2,1,5")

	deltas, err := aggregate(t.Context(), []string{path}, testFilter)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 15}, deltas)
}

func TestAggregate_ConflictingEvent(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeLedger(t, dir, "a.gz", "ev-1,1,10"),
		writeLedger(t, dir, "b.gz", "ev-1,1,11"),
	}

	_, err := aggregate(t.Context(), files, testFilter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event ev-1 differs")
}

func TestAggregate_MalformedLine(t *testing.T) {
	path := writeLedger(t, t.TempDir(), "a.gz", "ev-1,1,10", "broken")

	_, err := aggregate(t.Context(), []string{path}, testFilter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.gz:2")
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeLedger(t, dir, "a.gz", "ev-1,1,10")
	writeLedger(t, dir, "b.gz", "ev-1,1,10", "ev-2,2,3")

	require.NoError(t, run(t.Context(), dir, "", true, testFilter))
}

func TestRun_NoLedgers(t *testing.T) {
	err := run(t.Context(), t.TempDir(), "", true, testFilter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no *.gz ledgers")
}
