package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesAreOrderedAndReadable(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "0001_scrape_jobs.sql", files[0])

	b, err := fs.ReadFile(files[0])
	require.NoError(t, err)
	require.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS scrape_jobs")
}
