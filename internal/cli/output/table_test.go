package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Name", "Type", "Comment")

	assert.Equal(t, []string{"Name", "Type", "Comment"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("public", "file_share", "Public share")
	table.AddRow("IPC$", "ipc_share", "")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"public", "file_share", "Public share"}, rows[0])
	assert.Equal(t, []string{"IPC$", "ipc_share", ""}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Value")
	table.AddRow("key1", "value1")
	table.AddRow("key2", "value2")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "VALUE")
	assert.Contains(t, output, "key1")
	assert.Contains(t, output, "value1")
	assert.Contains(t, output, "key2")
	assert.Contains(t, output, "value2")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"Size", "4096"},
		{"Mode", "-rw-r--r--"},
	}

	var buf bytes.Buffer
	err := SimpleTable(&buf, pairs)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Size")
	assert.Contains(t, output, "4096")
	assert.Contains(t, output, "-rw-r--r--")
}
