package locale

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// knownLocales are the locale tags the cleaner can purge. Regional variants
// are listed only where translations commonly ship separately.
var knownLocales = strings.Fields(`
	aa ab ace ach ae af ak am an ang anp ar as ast av ay az
	ba bal be bg bh bi bm bn bo br brx bs byn
	ca ce cgg ch ckb co cr crh cs csb cu cv cy
	da de doi dv dz
	ee el en en_AU en_CA en_GB eo es es_419 et eu
	fa ff fi fil fin fj fo fr frp fur fy
	ga gd gez gl gn gu gv
	ha haw he hi hne ho hr hsb ht hu hy hz
	ia id ie ig ii ik ilo ina io is it iu iw
	ja jv
	ka kab kac kg ki kj kk kl km kn ko kok kr ks ku kv kw ky
	la lb lg li ln lo lt lu lv
	mai mg mh mhr mi mk ml mn mni mr ms mt my
	na nb nd nds ne ng nl nn no nr nso nv ny
	oc oj om or os
	pa pap pau pi pl ps pt pt_BR
	qu
	rm rn ro ru rw
	sa sat sc sd se sg shn si sk sl sm sn so sq sr ss st su sv sw
	ta te tet tg th ti tig tk tl tn to tr ts tt tw ty
	ug uk ur uz
	ve vi vo
	wa wae wal wo
	xh
	yi yo
	za zh zh_CN zh_TW zu
`)

// Catalog returns a copy of the known locale tags, sorted.
func Catalog() []string {
	return slices.Clone(knownLocales)
}

// IsKnown reports whether code is in the catalog.
func IsKnown(code string) bool {
	_, found := slices.BinarySearch(knownLocales, code)
	return found
}

// DisplayName returns the name of a locale in its own language, e.g.
// "Deutsch" for "de". Codes the language tables do not know fall back to the
// code itself.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}
