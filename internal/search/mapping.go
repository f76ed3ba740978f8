package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for record documents.
//
// Titles use the simple analyzer: romanized Japanese does not survive English stemming.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = simple.Name
	titleField.Store = true
	titleField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("title", titleField)

	altTitlesField := bleve.NewTextFieldMapping()
	altTitlesField.Analyzer = simple.Name
	altTitlesField.Store = true
	docMapping.AddFieldMappingsAt("alt_titles", altTitlesField)

	// Qualifier-stripped titles, the primary match target.
	matchTitlesField := bleve.NewTextFieldMapping()
	matchTitlesField.Analyzer = simple.Name
	matchTitlesField.Store = false
	docMapping.AddFieldMappingsAt("match_titles", matchTitlesField)

	mediaTypeField := bleve.NewTextFieldMapping()
	mediaTypeField.Analyzer = keyword.Name
	mediaTypeField.Store = true
	docMapping.AddFieldMappingsAt("media_type", mediaTypeField)

	genresField := bleve.NewTextFieldMapping()
	genresField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("genres", genresField)

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idField)

	for _, name := range []string{"year", "episodes", "primary_id", "secondary_id", "updated_at"} {
		f := bleve.NewNumericFieldMapping()
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	activeField := bleve.NewBooleanFieldMapping()
	activeField.Store = true
	docMapping.AddFieldMappingsAt("active", activeField)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
