package labels

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// dictionary holds English to Norwegian translations for common object names.
var dictionary = map[string]string{
	"dog":      "hund",
	"cat":      "katt",
	"bird":     "fugl",
	"fish":     "fisk",
	"horse":    "hest",
	"car":      "bil",
	"bicycle":  "sykkel",
	"boat":     "båt",
	"tree":     "tre",
	"flower":   "blomst",
	"house":    "hus",
	"person":   "person",
	"chair":    "stol",
	"table":    "bord",
	"book":     "bok",
	"phone":    "telefon",
	"computer": "datamaskin",
	"bottle":   "flaske",
	"cup":      "kopp",
	"apple":    "eple",
}

var lower = cases.Lower(language.English)

// Translate looks up the Norwegian word for an English label. Unknown words
// are returned in parentheses so they are recognizable as untranslated.
func Translate(english string) string {
	if no, ok := dictionary[lower.String(english)]; ok {
		return no
	}
	return "(" + english + ")"
}
