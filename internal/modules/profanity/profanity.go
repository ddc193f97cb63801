package profanity

import (
	"regexp"
	"strings"
	"unicode"

	"sentinel-automod/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Word lists per tier. Each tier also matches every tier below it.
var (
	lowWords = []string{
		"fuck",
		"fucking",
		"fucker",
		"motherfucker",
		"cunt",
		"nigger",
		"faggot",
	}
	mediumWords = []string{
		"shit",
		"bullshit",
		"bitch",
		"bastard",
		"asshole",
		"dick",
		"dickhead",
		"piss",
		"slut",
		"whore",
		"wanker",
	}
	highWords = []string{
		"damn",
		"crap",
		"bs",
		"hell",
		"wtf",
		"stfu",
		"bollocks",
		"bloody",
		"arse",
		"prick",
	}
)

var tiers = map[models.ProfanityTier]map[string]struct{}{
	models.TierLow:    wordSet(lowWords),
	models.TierMedium: wordSet(lowWords, mediumWords),
	models.TierHigh:   wordSet(lowWords, mediumWords, highWords),
}

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// ContainsProfanity reports whether any whitespace token of text is an exact
// member of the tier's word list. Substrings never match, so "class" is clean
// even though a listed word is inside it.
func ContainsProfanity(text string, tier models.ProfanityTier) bool {
	words, ok := tiers[tier]
	if !ok || text == "" {
		return false
	}
	for _, token := range Tokenize(text) {
		if _, hit := words[token]; hit {
			return true
		}
	}
	return false
}

// Tokenize lowercases text, folds accents, drops non-word characters and splits
// on whitespace.
func Tokenize(text string) []string {
	// transform chains carry state and must not be shared between goroutines
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		folded = text
	}
	bare := nonTokenChars.ReplaceAllString(strings.ToLower(folded), "")
	return strings.Fields(bare)
}

func wordSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, word := range list {
			set[word] = struct{}{}
		}
	}
	return set
}
