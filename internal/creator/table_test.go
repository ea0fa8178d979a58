package creator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTable(t *testing.T) {
	var b strings.Builder
	err := WriteTable(&b, []Creator{
		{CreatorID: "zed", Name: "Zed", Fee: 100},
		{CreatorID: "alice", Name: "Alice", Fee: 500},
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"+- CreatorId -+- Fee --+- Name ------- - -",
		"| alice       |   500$ | Alice",
		"| zed         |   100$ | Zed",
		"+-------------+--------+------------ - -",
		"",
	}, "\n"), b.String())
}

func TestWriteTableWidensColumns(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteTable(&b, []Creator{{CreatorID: "a-very-long-creator", Name: "Long", Fee: 1000000}}))

	lines := strings.Split(b.String(), "\n")
	assert.Equal(t, "+- CreatorId ---------+- Fee ----+- Name ------- - -", lines[0])
	assert.Equal(t, "| a-very-long-creator | 1000000$ | Long", lines[1])
	assert.Equal(t, "+---------------------+----------+------------ - -", lines[2])
}
