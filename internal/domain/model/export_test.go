package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ExportFormat
		wantErr bool
	}{
		{name: "csv", raw: "csv", want: ExportFormatCSV},
		{name: "trims and lowercases", raw: "  WOS-Plaintext ", want: ExportFormatWoSPlaintext},
		{name: "zip", raw: "zip", want: ExportFormatZip},
		{name: "unknown", raw: "bibtex", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExportFormat(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportFormat_Extension(t *testing.T) {
	assert.Equal(t, "csv", ExportFormatCSV.Extension())
	assert.Equal(t, "csv", ExportFormatMegaCSV.Extension())
	assert.Equal(t, "txt", ExportFormatWoSPlaintext.Extension())
	assert.Equal(t, "csv", ExportFormatGroupBysCSV.Extension())
	assert.Equal(t, "ris", ExportFormatRIS.Extension())
	assert.Equal(t, "zip", ExportFormatZip.Extension())
	assert.Len(t, SupportedFormats(), 6)
}

func TestExportStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, ExportStatusSubmitted.CanTransitionTo(ExportStatusRunning))
	assert.True(t, ExportStatusRunning.CanTransitionTo(ExportStatusFinished))
	assert.True(t, ExportStatusRunning.CanTransitionTo(ExportStatusFailed))
	assert.False(t, ExportStatusSubmitted.CanTransitionTo(ExportStatusFinished))

	for _, terminal := range []ExportStatus{ExportStatusFinished, ExportStatusFailed} {
		assert.True(t, terminal.Terminal())
		for _, next := range []ExportStatus{ExportStatusSubmitted, ExportStatusRunning, ExportStatusFinished, ExportStatusFailed} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestNewExportID(t *testing.T) {
	id := NewExportID(ExportFormatRIS)
	assert.True(t, strings.HasPrefix(id, "works-ris-"))
	assert.NotEqual(t, id, NewExportID(ExportFormatRIS))
}

func TestExport_DownloadFilename(t *testing.T) {
	e := &Export{ID: "works-csv-abc", Format: ExportFormatCSV}
	assert.Equal(t, "works-csv-abc.csv", e.DownloadFilename())

	e.Submitted = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "works-2024-03-09T14-05-07.csv", e.DownloadFilename())
	assert.Equal(t, "works-csv-abc.csv", e.ObjectKey())
}

func TestExport_Options(t *testing.T) {
	e := &Export{}
	opts, err := e.Options()
	require.NoError(t, err)
	assert.Empty(t, opts.Columns)

	e.Args = json.RawMessage(`{"columns":["id","authorships.author"],"truncate":true}`)
	opts, err = e.Options()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "authorships.author"}, opts.Columns)
	assert.True(t, opts.Truncate)

	e.Args = json.RawMessage(`{`)
	_, err = e.Options()
	require.Error(t, err)
}

func TestExportArgs_Canonical(t *testing.T) {
	assert.Equal(t, "{}", ExportArgs{}.Canonical())
	assert.Equal(t, "{}", ExportArgs{Columns: []string{}}.Canonical())
	assert.Equal(t, `{"columns":["display_name"],"truncate":true}`,
		ExportArgs{Columns: []string{"display_name"}, Truncate: true}.Canonical())
	assert.NotEqual(t,
		ExportArgs{Columns: []string{"id", "doi"}}.Canonical(),
		ExportArgs{Columns: []string{"doi", "id"}}.Canonical(),
		"column order changes the artifact")
}

func TestCreateExportRequest_Validate(t *testing.T) {
	req := &CreateExportRequest{QueryURL: "https://api.openalex.org/works", Format: ExportFormatCSV}
	require.NoError(t, req.Validate())

	req.Format = "pdf"
	require.ErrorIs(t, req.Validate(), ErrUnsupportedFormat)

	req.Format = ExportFormatCSV
	req.QueryURL = " "
	require.Error(t, req.Validate())
}

func TestValidateEmail(t *testing.T) {
	addr, err := ValidateEmail("  someone@example.org ")
	require.NoError(t, err)
	assert.Equal(t, "someone@example.org", addr)

	_, err = ValidateEmail("someone@example")
	require.ErrorIs(t, err, ErrInvalidEmail)
}
