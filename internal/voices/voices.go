// Package voices holds the built-in Kokoro voice and language catalogs used
// when a server cannot be asked for its own.
package voices

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Voice is a selectable speaker.
type Voice struct {
	ID   string
	Name string
}

// Language is a Kokoro language code with a display name.
type Language struct {
	Code string
	Name string
}

var displayNames = map[string]string{
	"af_heart":    "American Female (Heart)",
	"af_alloy":    "American Female (Alloy)",
	"af_aoede":    "American Female (Aoede)",
	"af_bella":    "American Female (Bella)",
	"af_jessica":  "American Female (Jessica)",
	"af_kore":     "American Female (Kore)",
	"af_nicole":   "American Female (Nicole)",
	"af_nova":     "American Female (Nova)",
	"af_river":    "American Female (River)",
	"af_sarah":    "American Female (Sarah)",
	"af_sky":      "American Female (Sky)",
	"am_adam":     "American Male (Adam)",
	"am_echo":     "American Male (Echo)",
	"am_eric":     "American Male (Eric)",
	"am_fenrir":   "American Male (Fenrir)",
	"am_liam":     "American Male (Liam)",
	"am_michael":  "American Male (Michael)",
	"am_onyx":     "American Male (Onyx)",
	"am_puck":     "American Male (Puck)",
	"am_santa":    "American Male (Santa)",
	"bf_alice":    "British Female (Alice)",
	"bf_emma":     "British Female (Emma)",
	"bf_isabella": "British Female (Isabella)",
	"bf_lily":     "British Female (Lily)",
	"bm_daniel":   "British Male (Daniel)",
	"bm_fable":    "British Male (Fable)",
	"bm_george":   "British Male (George)",
	"bm_lewis":    "British Male (Lewis)",
}

var languageNames = map[string]string{
	"a": "American English",
	"b": "British English",
	"e": "Spanish",
	"f": "French",
	"h": "Hindi",
	"i": "Italian",
	"j": "Japanese",
	"p": "Portuguese (BR)",
	"z": "Mandarin Chinese",
}

// DisplayName returns a human readable name for a voice id, falling back to
// the id itself.
func DisplayName(id string) string {
	if n, ok := displayNames[id]; ok {
		return n
	}
	return id
}

// LanguageName returns a human readable name for a language code.
func LanguageName(code string) string {
	if n, ok := languageNames[code]; ok {
		return n
	}
	return code
}

// Known reports whether id is in the built-in catalog.
func Known(id string) bool {
	_, ok := displayNames[id]
	return ok
}

// KnownLanguage reports whether code is a built-in language code.
func KnownLanguage(code string) bool {
	_, ok := languageNames[code]
	return ok
}

// Builtin returns the built-in voices sorted by id.
func Builtin() []Voice {
	out := make([]Voice, 0, len(displayNames))
	for id, name := range displayNames {
		out = append(out, Voice{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuiltinLanguages returns the built-in languages sorted by code.
func BuiltinLanguages() []Language {
	out := make([]Language, 0, len(languageNames))
	for code, name := range languageNames {
		out = append(out, Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// FromIDs builds voices from bare ids using the built-in display names.
func FromIDs(ids []string) []Voice {
	out := make([]Voice, 0, len(ids))
	for _, id := range ids {
		out = append(out, Voice{ID: id, Name: DisplayName(id)})
	}
	return out
}

// Languages builds languages from bare codes.
func Languages(codes []string) []Language {
	out := make([]Language, 0, len(codes))
	for _, c := range codes {
		out = append(out, Language{Code: c, Name: LanguageName(c)})
	}
	return out
}

// Suggest returns up to n voice ids from candidates that fuzzily match
// query, best match first. Display names are searched too, so "bella" finds
// af_bella.
func Suggest(query string, candidates []Voice, n int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || n <= 0 {
		return nil
	}

	data := make([]string, len(candidates))
	for i, v := range candidates {
		data[i] = strings.ToLower(v.ID + " " + v.Name)
	}

	var out []string
	for _, m := range fuzzy.Find(query, data) {
		out = append(out, candidates[m.Index].ID)
		if len(out) == n {
			break
		}
	}
	return out
}
