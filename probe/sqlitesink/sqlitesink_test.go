package sqlitesink_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nengodist/nengodist/internal/runid"
	"github.com/nengodist/nengodist/probe/sqlitesink"
)

func TestWriteAndReadBlockRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "probes.db")
	sink, err := sqlitesink.Open(dbPath, runid.New(), nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteBlock(1, "décodé", [][]float64{{1, 2}, {3, 4}}))
	require.NoError(t, sink.WriteBlock(1, "décodé", [][]float64{{5, 6}}))

	rows, err := sink.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, rows)
}

func TestReadBlockUnknownKeyReturnsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "probes.db")
	sink, err := sqlitesink.Open(dbPath, runid.New(), nil)
	require.NoError(t, err)
	defer sink.Close()

	rows, err := sink.ReadBlock(99)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSeparateKeysGetSeparateTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "probes.db")
	sink, err := sqlitesink.Open(dbPath, runid.New(), nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteBlock(1, "a", [][]float64{{1}}))
	require.NoError(t, sink.WriteBlock(2, "b", [][]float64{{2, 2}}))

	a, err := sink.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1}}, a)

	b, err := sink.ReadBlock(2)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{2, 2}}, b)
}
