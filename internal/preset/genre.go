package preset

import (
	"strings"

	"golang.org/x/text/cases"
)

// Supported genres
const (
	GenrePop        = "pop"
	GenreRock       = "rock"
	GenreHipHop     = "hip-hop"
	GenreJazz       = "jazz"
	GenreElectronic = "electronic"
	GenreCountry    = "country"
	GenreClassical  = "classical"
	GenreRnB        = "r&b"
)

var aliases = map[string]string{
	"hiphop":           GenreHipHop,
	"hip hop":          GenreHipHop,
	"hip_hop":          GenreHipHop,
	"rap":              GenreHipHop,
	"trap":             GenreHipHop,
	"rnb":              GenreRnB,
	"r n b":            GenreRnB,
	"r and b":          GenreRnB,
	"r'n'b":            GenreRnB,
	"rhythm and blues": GenreRnB,
	"soul":             GenreRnB,
	"edm":              GenreElectronic,
	"electro":          GenreElectronic,
	"dance":            GenreElectronic,
	"house":            GenreElectronic,
	"techno":           GenreElectronic,
	"orchestral":       GenreClassical,
	"alt rock":         GenreRock,
	"alternative":      GenreRock,
	"metal":            GenreRock,
	"folk":             GenreCountry,
}

// Canonicalize case-folds and trims a genre name and resolves known aliases.
// Names that are not aliases are returned folded but otherwise unchanged.
func Canonicalize(genre string) string {
	g := cases.Fold().String(strings.TrimSpace(genre))
	g = strings.Join(strings.Fields(g), " ")
	if canonical, ok := aliases[g]; ok {
		return canonical
	}
	return g
}
