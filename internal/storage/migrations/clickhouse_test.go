package migrations

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `-- candles; one row per bar
CREATE TABLE IF NOT EXISTS candles (market String) ENGINE = MergeTree ORDER BY market;

-- comment with 'quote
ALTER TABLE candles COMMENT COLUMN market 'symbol; e.g. BTCUSDT';
INSERT INTO notes VALUES ('it''s; fine')
`
	stmts, err := splitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, "CREATE TABLE IF NOT EXISTS candles (market String) ENGINE = MergeTree ORDER BY market", stmts[0])
	assert.Equal(t, "ALTER TABLE candles COMMENT COLUMN market 'symbol; e.g. BTCUSDT'", stmts[1])
	assert.Equal(t, "INSERT INTO notes VALUES ('it''s; fine')", stmts[2])
}

func TestSplitStatements_UnterminatedLiteral(t *testing.T) {
	_, err := splitStatements("SELECT 'open;")
	assert.Error(t, err)
}

func TestSplitStatements_EmbeddedSchema(t *testing.T) {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		require.NoError(t, err)
		stmts, err := splitStatements(string(data))
		require.NoError(t, err, file)
		if len(stmts) == 0 {
			t.Errorf("%s: no statements", file)
		}
	}
}

func TestSQLFiles_SortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"db/002_b.sql":   {Data: []byte("SELECT 2")},
		"db/001_a.sql":   {Data: []byte("SELECT 1")},
		"db/README.md":   {Data: []byte("notes")},
		"db/sub/003.sql": {Data: []byte("SELECT 3")},
	}
	files, err := sqlFiles(fsys, "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}
