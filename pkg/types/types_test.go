package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkValidate(t *testing.T) {
	c := &Chunk{
		DocumentID: "doc-1",
		Content:    "Operating voltage 1.1 V",
		PageNumber: 1,
		ChunkType:  ChunkText,
	}
	assert.Error(t, c.Validate(), "hash not computed")

	c.ComputeContentHash()
	require.NoError(t, c.Validate())

	c.PageNumber = 0
	assert.Error(t, c.Validate())

	c.PageNumber = 2
	c.ChunkType = "paragraph"
	assert.Error(t, c.Validate())
}

func TestChunkTokenCountCountsRunes(t *testing.T) {
	c := &Chunk{Content: "동작 전압은 1.1V"}
	assert.Equal(t, 11/4, c.ComputeTokenCount())
}

func TestParseUserRole(t *testing.T) {
	r, err := ParseUserRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleEngineer, r)

	r, err = ParseUserRole(" Quality ")
	require.NoError(t, err)
	assert.Equal(t, RoleQuality, r)

	_, err = ParseUserRole("manager")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestParseDocumentType(t *testing.T) {
	d, err := ParseDocumentType("")
	require.NoError(t, err)
	assert.Equal(t, DocDatasheet, d)

	d, err = ParseDocumentType("MANUAL")
	require.NoError(t, err)
	assert.Equal(t, DocManual, d)

	_, err = ParseDocumentType("brochure")
	assert.ErrorIs(t, err, ErrInvalidDocumentType)
}

func TestProcessingStatus(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, ProcessingStatus("queued").Valid())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestSearchResultValidate(t *testing.T) {
	sr := &SearchResult{ChunkID: 1, Rank: 1, RelevanceScore: 0.5, Document: &DocumentRef{ID: "d"}, Content: "x"}
	require.NoError(t, sr.Validate())

	sr.RelevanceScore = 1.5
	assert.ErrorIs(t, sr.Validate(), ErrInvalidRelevanceScore)

	sr.RelevanceScore = 0.5
	sr.Document = nil
	assert.ErrorIs(t, sr.Validate(), ErrMissingDocument)
}

func TestExtractResultErrors(t *testing.T) {
	r := &ExtractResult{Pages: []Page{{Number: 1, Text: "abc"}, {Number: 2, Text: "de"}}}
	assert.False(t, r.HasErrors())
	r.AddError("a.pdf", 3, "bad stream")
	assert.True(t, r.HasErrors())
	assert.Equal(t, 5, r.TextLength())
	assert.Equal(t, "bad stream", r.Errors[0].Error())
}

func TestTableRender(t *testing.T) {
	table := Table{Page: 1, Rows: [][]string{{"Parameter", "Min", "Max"}, {"VDD", "1.067", "1.166"}}}
	assert.Equal(t, "Parameter | Min | Max\nVDD | 1.067 | 1.166", table.Render())
	assert.Equal(t, "", Table{}.Render())
}

func TestExtractResultSectionAt(t *testing.T) {
	result := &ExtractResult{Sections: []Section{
		{Title: "Overview", Page: 1, Offset: 0},
		{Title: "Features", Page: 1, Offset: 500},
		{Title: "Electrical", Page: 3, Offset: 100},
	}}

	assert.Equal(t, "Overview", result.SectionAt(1, 10))
	assert.Equal(t, "Features", result.SectionAt(1, 500))
	assert.Equal(t, "Features", result.SectionAt(2, 0))
	assert.Equal(t, "Features", result.SectionAt(3, 50))
	assert.Equal(t, "Electrical", result.SectionAt(3, 100))
	assert.Equal(t, "", (&ExtractResult{}).SectionAt(1, 0))

	late := &ExtractResult{Sections: []Section{{Title: "Features", Page: 1, Offset: 500}}}
	assert.Equal(t, "", late.SectionAt(1, 0))
}
