package matcher

import (
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
)

// AliasTable holds, per type name, a set of named expansions: a bare name
// referenced as "@name" in a predicate's atom list is replaced by its
// expansion text before parsing, so a predicate can reference a shared
// definition instead of repeating it (spec.md §4.3, "ARKI_ALIASES").
type AliasTable map[string]map[string]string

// NewAliasTable returns an empty table.
func NewAliasTable() AliasTable {
	return make(AliasTable)
}

// Define registers one alias for typeName, replacing any previous
// definition.
func (t AliasTable) Define(typeName, alias, expansion string) {
	byName, ok := t[strings.ToLower(typeName)]
	if !ok {
		byName = make(map[string]string)
		t[strings.ToLower(typeName)] = byName
	}
	byName[alias] = expansion
}

// expand replaces every "@alias" token in text with its expansion for
// typeName, recursively (an alias's expansion may itself reference another
// alias). A reference to an undefined alias, or an expansion cycle, is
// reported as a MatcherError.
func (t AliasTable) expand(typeName, text string) (string, error) {
	byName := t[strings.ToLower(typeName)]
	seen := map[string]bool{}
	for {
		idx := strings.IndexByte(text, '@')
		if idx < 0 {
			return text, nil
		}
		end := idx + 1
		for end < len(text) && isAliasChar(text[end]) {
			end++
		}
		name := text[idx+1 : end]
		if name == "" {
			return text, nil
		}
		if seen[name] {
			return "", arkerrs.NewMatcherError(nil, "alias expansion cycle on @"+name).WithText(text)
		}
		seen[name] = true

		expansion, ok := byName[name]
		if !ok {
			return "", arkerrs.NewMatcherError(nil, "undefined alias @"+name).WithText(text).WithPosition(idx)
		}
		text = text[:idx] + expansion + text[end:]
	}
}

func isAliasChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
