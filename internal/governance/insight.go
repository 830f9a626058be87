package governance

import (
	"fmt"
	"regexp"
	"strings"
)

// MentionExtractor pulls the persona mention out of an insight line.
// Insights are prose; the persona reference is conventionally quoted.
type MentionExtractor interface {
	Extract(text string) (name string, ok bool)
}

// QuoteChainExtractor extracts the quoted persona name from an insight,
// trying progressively looser patterns: a quoted name at the end of the
// line, a quoted name followed by a descriptor word, then any quoted token.
type QuoteChainExtractor struct{}

var (
	quotedAtEnd     = regexp.MustCompile(`["']([^"']+)["']\.?$`)
	quotedDescribed = regexp.MustCompile(`["']([^"']+)["'](?:\s+(?:persona|mindset|segment|type))?\.?$`)
	quotedAnywhere  = regexp.MustCompile(`["']([^"']+)["']`)
)

// Extract implements MentionExtractor.
func (QuoteChainExtractor) Extract(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{quotedAtEnd, quotedDescribed, quotedAnywhere} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// singularize strips a plural suffix from a persona mention: a trailing "s"
// unless the name ends in "ss", and "ies" back to "y".
func singularize(name string) string {
	singular := name
	if strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss") {
		singular = name[:len(name)-1]
	}
	if strings.HasSuffix(singular, "ie") && strings.HasSuffix(name, "ies") {
		singular = singular[:len(singular)-2] + "y"
	}
	return singular
}

// ValidateInsightText checks that an insight references a valid, distinct
// portfolio persona. An insight with no quoted persona is trivially valid.
// Plural mentions ("Caffeine Fiends") resolve to their singular canon form.
// Returns the mentioned persona and a reason when invalid.
func (e *Engine) ValidateInsightText(text string) (bool, string, string) {
	mention, ok := e.extractor.Extract(text)
	if !ok {
		return true, "", ""
	}

	singular := singularize(mention)
	canonical := e.store.Canonicalize(mention)
	if !e.store.IsAllowed(canonical, e.category) {
		canonical = e.store.Canonicalize(singular)
	}

	if e.store.IsDeprecated(canonical) {
		return false, mention, fmt.Sprintf("persona %q is a sunset persona", mention)
	}
	if !e.isAllowed(canonical) {
		return false, mention, fmt.Sprintf("persona %q not valid for category %q", mention, e.category)
	}

	inPortfolio := e.sel.InPortfolio(canonical)
	if !inPortfolio && singular != mention {
		inPortfolio = e.sel.InPortfolio(e.store.Canonicalize(singular))
	}
	if !inPortfolio {
		return false, mention, fmt.Sprintf("persona %q not in portfolio", mention)
	}

	isHighlight := e.sel.IsHighlight(canonical)
	if !isHighlight && singular != mention {
		isHighlight = e.sel.IsHighlight(e.store.Canonicalize(singular))
	}
	if isHighlight {
		return false, mention, fmt.Sprintf("persona %q already in highlights; insights must use different personas", mention)
	}

	return true, mention, ""
}

// ResolveInsight validates an insight sentence, repairing it when the
// mentioned persona is invalid or already highlighted. The mentioned persona
// is claimed for the insight set so later insights cannot reuse it. ok is
// false when the sentence could not be validated or repaired.
func (e *Engine) ResolveInsight(text string) (fixed, persona string, repaired, ok bool) {
	valid, mention, _ := e.ValidateInsightText(text)
	if valid {
		persona = e.resolveMention(mention)
		if persona != "" {
			e.sel.AddToInsights(persona)
		}
		return text, persona, false, true
	}

	fixed = e.FixInsightText(text)
	valid, mention, _ = e.ValidateInsightText(fixed)
	if !valid {
		return text, "", false, false
	}
	return fixed, e.resolveMention(mention), true, true
}

// resolveMention maps a quoted mention to the canonical portfolio persona,
// trying the singular form when the plural does not resolve.
func (e *Engine) resolveMention(mention string) string {
	if mention == "" {
		return ""
	}
	canonical := e.store.Canonicalize(mention)
	if !e.sel.InPortfolio(canonical) {
		canonical = e.store.Canonicalize(singularize(mention))
	}
	if e.sel.InPortfolio(canonical) {
		return canonical
	}
	return ""
}

// FixInsightText repairs an insight that references an invalid or
// highlighted persona by substituting a valid portfolio persona. Preference
// goes to portfolio personas that are neither highlights nor already used by
// an insight; failing that, any portfolio persona not yet used by an
// insight. If no replacement exists the text is returned unchanged.
func (e *Engine) FixInsightText(text string) string {
	valid, mention, reason := e.ValidateInsightText(text)
	if valid {
		return text
	}

	var replacement string
	for _, name := range e.sel.portfolio {
		if !e.sel.IsHighlight(name) && !e.sel.InInsights(name) {
			replacement = name
			break
		}
	}
	if replacement == "" {
		for _, name := range e.sel.portfolio {
			if !e.sel.InInsights(name) {
				replacement = name
				break
			}
		}
	}

	if replacement == "" || mention == "" {
		e.log.Warn("could not repair insight", "reason", reason)
		return text
	}

	var fixed string
	switch {
	case strings.Contains(text, "'"+mention+"'"):
		fixed = strings.ReplaceAll(text, "'"+mention+"'", "'"+replacement+"'")
	case strings.Contains(text, `"`+mention+`"`):
		fixed = strings.ReplaceAll(text, `"`+mention+`"`, `"`+replacement+`"`)
	default:
		fixed = strings.ReplaceAll(text, mention, replacement)
	}

	e.sel.AddToInsights(replacement)
	e.log.Info("repaired insight persona",
		"replaced", mention,
		"with", replacement,
		"reason", reason)
	return fixed
}
