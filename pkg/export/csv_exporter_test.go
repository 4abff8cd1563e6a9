package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	payload, err := exporter.Render(Dataset{
		Headers: []string{"Name", "Progress"},
		Rows: []map[string]string{
			{"Name": "Ada Lovelace", "Progress": "100%"},
			{"Name": "Grace Hopper", "Progress": "50%"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Name,Progress", lines[0])
	require.Equal(t, "Ada Lovelace,100%", lines[1])
}

func TestCSVExporterMissingCellsStayEmpty(t *testing.T) {
	exporter := NewCSVExporter()
	payload, err := exporter.Render(Dataset{
		Headers: []string{"Name", "Email"},
		Rows:    []map[string]string{{"Name": "Ada Lovelace"}},
	})
	require.NoError(t, err)
	require.Contains(t, string(payload), "Ada Lovelace,")
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}
