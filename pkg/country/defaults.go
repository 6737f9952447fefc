package country

import (
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/ident"
	"github.com/OFFIS-RIT/lexlink/pkg/legaldate"
	"github.com/OFFIS-RIT/lexlink/pkg/rank"
)

// Chile material lists related norms under "normas_relacionadas" with the
// relation in "tipo".
func Chile() Profile {
	return Profile{
		Country:    common.Chile,
		Identifier: ident.ChileRule{},
		Dates:      legaldate.Spanish(),
		Extractor: extract.JSONExtractor{
			Paths: []extract.JSONPath{{Path: "normas_relacionadas"}},
			Fields: extract.JSONFields{
				Target:           "norma",
				Role:             "tipo",
				AffectingArticle: "articulo_modificador",
				ModifiedArticle:  "articulo_modificado",
				Date:             "fecha",
			},
			Roles: map[string]common.Role{
				"modifica":       common.Modifies,
				"modificada":     common.ModifiedBy,
				"modificada por": common.ModifiedBy,
			},
		},
		Ranking:       rank.Default(),
		RequirePassed: true,
	}
}

// Colombia material splits the relation into two arrays.
func Colombia() Profile {
	return Profile{
		Country:    common.Colombia,
		Identifier: ident.ColombiaRule{},
		Dates:      legaldate.Spanish(),
		Extractor: extract.JSONExtractor{
			Paths: []extract.JSONPath{
				{Path: "modifica", Role: common.Modifies},
				{Path: "modificada_por", Role: common.ModifiedBy},
			},
			Fields: extract.JSONFields{
				Target:           "ley",
				AffectingArticle: "articulo",
				ModifiedArticle:  "articulo_afectado",
				Date:             "fecha",
			},
		},
		Ranking:       rank.Default(),
		RequirePassed: true,
	}
}

// USA material follows the congress.gov "laws affected" layout.
func USA() Profile {
	return Profile{
		Country:    common.USA,
		Identifier: ident.USARule{},
		Dates:      legaldate.English(),
		Extractor: extract.JSONExtractor{
			Paths: []extract.JSONPath{
				{Path: "affects", Role: common.Modifies},
				{Path: "affectedBy", Role: common.ModifiedBy},
			},
			Fields: extract.JSONFields{
				Target:           "law",
				AffectingArticle: "section",
				ModifiedArticle:  "targetSection",
				Date:             "date",
			},
		},
		Ranking: rank.Default(),
	}
}

// Jordan material comes from the legislation bureau and carries the role as
// free text in Arabic or English.
func Jordan() Profile {
	return Profile{
		Country:    common.Jordan,
		Identifier: ident.JordanRule{},
		Dates:      legaldate.Arabic(),
		Extractor: extract.JSONExtractor{
			Paths: []extract.JSONPath{{Path: "related"}},
			Fields: extract.JSONFields{
				Target:           "law",
				Role:             "relation",
				AffectingArticle: "article",
				ModifiedArticle:  "amended_article",
				Date:             "date",
			},
			Roles: map[string]common.Role{
				"amends":     common.Modifies,
				"معدل":       common.Modifies,
				"amended by": common.ModifiedBy,
				"معدل بموجب": common.ModifiedBy,
			},
		},
		Ranking:       rank.Default(),
		RequirePassed: true,
	}
}

// Defaults returns a registry with every supported country.
func Defaults() *Registry {
	return NewRegistry(Chile(), Colombia(), USA(), Jordan())
}
