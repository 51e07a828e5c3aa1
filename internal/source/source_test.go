package source

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/model"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		domain model.Domain
		want   []model.SourceKind
	}{
		{model.DomainCurrentEvents, []model.SourceKind{model.SourceGeneralSearch, model.SourceBroadSearch}},
		{model.DomainHistoryPeople, []model.SourceKind{model.SourceGeneralSearch, model.SourceEncyclopedic}},
		{model.DomainScienceResearch, []model.SourceKind{model.SourceGeneralSearch, model.SourceAcademic}},
		{model.DomainAcademicPaper, []model.SourceKind{model.SourceGeneralSearch, model.SourceAcademic}},
		{model.DomainGeneralSearch, []model.SourceKind{model.SourceGeneralSearch, model.SourceBroadSearch}},
		{model.Domain("astrology"), []model.SourceKind{model.SourceGeneralSearch, model.SourceBroadSearch}},
	}

	for _, tt := range tests {
		t.Run(string(tt.domain), func(t *testing.T) {
			got := Route(tt.domain)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxSourcesPerClaim)
		})
	}
}

func TestRoute_ReturnsCopy(t *testing.T) {
	got := Route(model.DomainHistoryPeople)
	got[0] = model.SourcePageFetch
	assert.Equal(t, model.SourceGeneralSearch, Route(model.DomainHistoryPeople)[0])
}

func TestEncyclopedicQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading year and name", "In 1969, Neil Armstrong walked on the Moon", "Neil Armstrong"},
		{"year prefix", "1950s: Alan Turing proposed a test", "Alan Turing"},
		{"single capitalized", "the theory was proposed by Einstein in 1905", "Einstein"},
		{"lowercase sentence", "water boils at one hundred degrees", "water boils at"},
		{"short lowercase", "dark matter", "dark matter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncyclopedicQuery(tt.input))
		})
	}
}

func TestAcademicQuery(t *testing.T) {
	assert.Equal(t, "GPT-4 OpenAI March", AcademicQuery("GPT-4 was released by OpenAI in March 2023"))
	assert.Equal(t, "Transformer", AcademicQuery("the Transformer architecture uses attention"))
	assert.Equal(t, "dark matter", AcademicQuery("dark matter"))
}

func TestMatchType(t *testing.T) {
	assert.Equal(t, model.MatchExact, matchType("GPT-4", "GPT-4 Technical Report", "..."))
	assert.Equal(t, model.MatchPartial, matchType("gpt-4", "Report", "OpenAI released GPT-4."))
	assert.Equal(t, model.MatchNone, matchType("llama", "Report", "nothing here"))
	assert.Equal(t, model.MatchNone, matchType("  ", "Report", "anything"))
}

func TestCheckStatus(t *testing.T) {
	status := func(code int) error {
		return checkStatus(model.SourceGeneralSearch, &http.Response{StatusCode: code})
	}

	assert.NoError(t, status(http.StatusOK))
	assert.True(t, IsConfigurationError(status(http.StatusUnauthorized)))
	assert.True(t, IsConfigurationError(status(http.StatusForbidden)))
	assert.ErrorIs(t, status(http.StatusTooManyRequests), ErrTransient)
	assert.ErrorIs(t, status(http.StatusBadGateway), ErrTransient)

	err := status(http.StatusBadRequest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTransient))
	assert.False(t, IsConfigurationError(err))
}

func TestClassifyTransport(t *testing.T) {
	assert.ErrorIs(t, classifyTransport(model.SourceAcademic, context.DeadlineExceeded), ErrTransient)
	assert.Equal(t, context.Canceled, classifyTransport(model.SourceAcademic, context.Canceled))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 5))

	// Multi-byte runes are not split
	got := truncate("ééééé", 3)
	assert.Equal(t, "é...", got)
	assert.Equal(t, "éé...", truncate("ééééé", 4))
}
