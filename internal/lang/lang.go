// Package lang maps arbitrary language tags found in e-book metadata to
// the fixed set of BCP 47 tags the catalog accepts.
package lang

import "strings"

// Normalizer maps raw language tags to accepted BCP 47 tags. The zero
// value is not usable; construct with New or Default.
type Normalizer struct {
	accepted map[string]struct{}
	defaults map[string]string // base language -> default region tag
}

// New builds a Normalizer from an allow-list of accepted tags and a
// base-language → default-tag table. Both are copied.
func New(accepted []string, defaults map[string]string) *Normalizer {
	n := &Normalizer{
		accepted: make(map[string]struct{}, len(accepted)),
		defaults: make(map[string]string, len(defaults)),
	}
	for _, tag := range accepted {
		n.accepted[tag] = struct{}{}
	}
	for base, tag := range defaults {
		n.defaults[base] = tag
	}
	return n
}

// defaultRegions maps a bare language code to the regional tag used when
// the metadata carries no region.
var defaultRegions = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
	"de": "de-DE",
	"es": "es-ES",
	"it": "it-IT",
	"pt": "pt-PT",
	"nl": "nl-NL",
	"pl": "pl-PL",
	"ru": "ru-RU",
	"sv": "sv-SE",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
}

// acceptedTags is the set of tags the persistence layer's language
// reference recognizes.
var acceptedTags = []string{
	"en-US", "en-GB", "fr-FR", "de-DE", "es-ES", "it-IT",
	"pt-PT", "pt-BR", "nl-NL", "pl-PL", "ru-RU", "sv-SE",
	"ja-JP", "ko-KR", "zh-CN", "zh-TW",
}

// Default returns a Normalizer loaded with the catalog's accepted tags
// and base-language defaults.
func Default() *Normalizer {
	return New(acceptedTags, defaultRegions)
}

// Normalize maps raw to an accepted tag. It returns ok=false when the
// tag cannot be mapped onto the accepted set; it never fabricates a tag
// outside the set and never returns an error.
func (n *Normalizer) Normalize(raw string) (tag string, ok bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if raw == "" {
		return "", false
	}

	if base, region, found := strings.Cut(raw, "-"); found && base != "" && region != "" {
		candidate := strings.ToLower(base) + "-" + strings.ToUpper(region)
		if _, known := n.accepted[candidate]; known {
			return candidate, true
		}
		// Region form did not land in the accepted set; retry with the
		// base language's default region.
		raw = base
	}

	candidate, known := n.defaults[strings.ToLower(raw)]
	if !known {
		return "", false
	}
	if _, accepted := n.accepted[candidate]; !accepted {
		return "", false
	}
	return candidate, true
}
