package source

import "github.com/ppiankov/groundcheck/internal/model"

// MaxSourcesPerClaim bounds how many sources a claim is checked against.
const MaxSourcesPerClaim = 2

var routes = map[model.Domain][]model.SourceKind{
	model.DomainCurrentEvents:   {model.SourceGeneralSearch, model.SourceBroadSearch},
	model.DomainHistoryPeople:   {model.SourceGeneralSearch, model.SourceEncyclopedic},
	model.DomainScienceResearch: {model.SourceGeneralSearch, model.SourceAcademic},
	model.DomainAcademicPaper:   {model.SourceGeneralSearch, model.SourceAcademic},
	model.DomainGeneralSearch:   {model.SourceGeneralSearch, model.SourceBroadSearch},
}

// Route returns the sources consulted for a claim domain.
// Unknown domains route like general_search. The result is never empty and
// never longer than MaxSourcesPerClaim.
func Route(domain model.Domain) []model.SourceKind {
	kinds, ok := routes[domain]
	if !ok {
		kinds = routes[model.DomainGeneralSearch]
	}
	if len(kinds) > MaxSourcesPerClaim {
		kinds = kinds[:MaxSourcesPerClaim]
	}
	out := make([]model.SourceKind, len(kinds))
	copy(out, kinds)
	return out
}
