package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	data := Dataset{Headers: []string{"id", "table", "operation"}}
	data.AddRow("1", "drivers", "CREATE")
	data.AddRow("2", "tariffs, legacy", "UPDATE")

	out, err := RenderCSV(data)
	require.NoError(t, err)
	assert.Equal(t, "id,table,operation\n1,drivers,CREATE\n2,\"tariffs, legacy\",UPDATE\n", string(out))
}

func TestRenderCSVRequiresHeaders(t *testing.T) {
	_, err := RenderCSV(Dataset{})
	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	table := &Dataset{Headers: []string{"Acción", "Fecha"}}
	table.AddRow("CREATED", "2026-01-01")

	out, err := RenderPDF(Document{
		Title:  "Factura",
		Fields: []Field{{Label: "Importe", Value: "100.00 CUP"}},
		Table:  table,
		Footer: "Documento generado automáticamente",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderPDFRequiresTitle(t *testing.T) {
	_, err := RenderPDF(Document{})
	assert.Error(t, err)
}
