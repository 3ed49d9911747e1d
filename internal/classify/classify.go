// Package classify provides deterministic text normalization, category
// inference and severity scoring shared by every connector. All
// functions are pure and safe for concurrent use.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mozillazg/go-unidecode"

	"github.com/jofongang/World-Monitor/internal/model"
)

// CategoryRule maps an ordered set of keywords to a category.
// First matching rule wins, so table order is significant.
type CategoryRule struct {
	Category string
	Keywords []string
}

// DefaultCategoryRules is the built-in keyword table. It is data, not
// logic: callers may supply their own ordered table to InferCategoryWith.
var DefaultCategoryRules = []CategoryRule{
	{model.CategoryConflict, []string{"war", "battle", "attack", "strike", "military", "troops"}},
	{model.CategorySanctions, []string{"sanctions", "embargo", "asset freeze", "export controls"}},
	{model.CategoryCyber, []string{"cyber", "malware", "ransomware", "breach", "hack", "ddos"}},
	{model.CategoryDisaster, []string{"earthquake", "flood", "wildfire", "hurricane", "storm", "volcano"}},
	{model.CategoryMarkets, []string{"market", "stocks", "bond", "yield", "oil", "gas", "gold", "dxy"}},
	{model.CategoryDiplomacy, []string{"summit", "talks", "foreign minister", "un", "nato", "treaty"}},
}

// DefaultSeverityBase maps each category to its base severity score.
var DefaultSeverityBase = map[string]int{
	model.CategoryConflict:  78,
	model.CategoryDisaster:  72,
	model.CategorySanctions: 68,
	model.CategoryCyber:     60,
	model.CategoryDiplomacy: 45,
	model.CategoryMarkets:   42,
	model.CategoryOther:     34,
}

// DefaultAmplifiers each add AmplifierStep to the base score when they
// appear in the classified text.
var DefaultAmplifiers = []string{
	"major", "dead", "killed", "urgent", "emergency",
	"warning", "missile", "ceasefire", "default",
}

// AmplifierStep is the fixed severity increment per amplifier hit.
const AmplifierStep = 4

// Normalize lowercases, transliterates to ASCII, collapses
// non-alphanumeric runs to single spaces and trims.
func Normalize(value string) string {
	folded := strings.ToLower(unidecode.Unidecode(value))
	var sb strings.Builder
	sb.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			sb.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			sb.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// TextHash returns the hex sha256 digest of the normalized text.
func TextHash(value string) string {
	sum := sha256.Sum256([]byte(Normalize(value)))
	return hex.EncodeToString(sum[:])
}

// InferCategory classifies text with the default rule table.
func InferCategory(text, fallback string) string {
	return InferCategoryWith(DefaultCategoryRules, text, fallback)
}

// InferCategoryWith classifies text against an ordered rule table.
// Matching is whole-token substring over space-padded normalized text;
// the first rule with any keyword hit wins.
func InferCategoryWith(rules []CategoryRule, text, fallback string) string {
	padded := " " + Normalize(text) + " "
	for _, rule := range rules {
		for _, keyword := range rule.Keywords {
			token := Normalize(keyword)
			if token != "" && strings.Contains(padded, " "+token+" ") {
				return rule.Category
			}
		}
	}
	if fallback == "" {
		return model.CategoryOther
	}
	return fallback
}

// InferSeverity scores text as the category base plus a fixed
// increment per amplifier keyword hit, clamped to [0,100].
func InferSeverity(category, text string) int {
	base, ok := DefaultSeverityBase[category]
	if !ok {
		base = DefaultSeverityBase[model.CategoryOther]
	}
	padded := " " + Normalize(text) + " "
	score := base
	for _, amplifier := range DefaultAmplifiers {
		token := Normalize(amplifier)
		if token != "" && strings.Contains(padded, " "+token+" ") {
			score += AmplifierStep
		}
	}
	return model.ClampScore(score)
}
