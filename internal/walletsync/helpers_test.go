package walletsync

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestdata(t *testing.T) io.Reader {
	t.Helper()
	data, err := os.ReadFile("../../testdata/venmo_statement.csv")
	require.NoError(t, err)
	return bytes.NewReader(data)
}
