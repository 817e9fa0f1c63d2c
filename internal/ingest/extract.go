// extract.go implements identity extraction from raw storefront order
// payloads.
//
// The upstream order schema is not contractually stable: depending on which
// checkout form, app, or theme produced the order, the buyer's account name
// can appear as a line-item property, a note attribute, a generic attribute
// (object or array shaped), a cart attribute, or free text in a note. The
// extractor runs a fixed, prioritized list of strategies and stops at the
// first non-empty hit. The order of the list is a behavioral contract:
// several locations can coexist with different values, and the structured,
// buyer-entered ones outrank the free-text fallbacks.
package ingest

import (
	"regexp"
	"strings"

	"shopbridge/internal/types"
)

// identitySynonyms is the case-insensitive set of attribute/property names
// recognized as carrying the buyer's account name. The German "spielername"
// is kept because a meaningful share of shops run localized checkout forms.
var identitySynonyms = map[string]struct{}{
	"username":           {},
	"minecraft username": {},
	"minecraft_username": {},
	"minecraft-username": {},
	"mc username":        {},
	"mc-username":        {},
	"mc_username":        {},
	"ign":                {},
	"spielername":        {},
	"player":             {},
	"player_name":        {},
	"player-name":        {},
	"playername":         {},
}

// flattenedPropertyFields are line-item fields produced by storefront apps
// that flatten the properties array into prefixed top-level keys.
var flattenedPropertyFields = []string{
	"properties_username",
	"properties_minecraft_username",
	"properties_mc_username",
	"properties_ign",
	"properties_spielername",
	"properties_player",
	"properties_player_name",
	"properties_playername",
}

// identityShape matches a bare account name: 3-16 word characters.
var identityShape = regexp.MustCompile(`^\w{3,16}$`)

// keyedIdentityPattern matches "key: value" fragments in free text, where
// key is any identity synonym. Built once from the synonym set.
var keyedIdentityPattern = buildKeyedIdentityPattern()

func buildKeyedIdentityPattern() *regexp.Regexp {
	keys := make([]string, 0, len(identitySynonyms))
	for k := range identitySynonyms {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(keys, "|") + `)\s*:\s*(\w{3,16})`)
}

// isIdentitySynonym reports whether name is in the synonym set,
// case-insensitively.
func isIdentitySynonym(name string) bool {
	_, ok := identitySynonyms[strings.ToLower(name)]
	return ok
}

// identityStrategy is one prioritized location to search for the identity.
// The name is used in logs so operators can see which shape their shop's
// payloads actually carry.
type identityStrategy struct {
	name string
	fn   func(order map[string]any) string
}

// identityStrategies lists the search locations in priority order. The first
// strategy returning a non-empty string wins.
var identityStrategies = []identityStrategy{
	{"line_item_properties", fromLineItemProperties},
	{"note_attributes", fromNoteAttributes},
	{"customer_note", fromCustomerNote},
	{"order_attributes", fromOrderAttributes},
	{"cart_attributes", fromCartAttributes},
	{"order_note", fromOrderNote},
}

// ExtractIdentity resolves the buyer's account identity from a raw order
// payload. It returns the identity, the name of the strategy that produced
// it, and whether any strategy matched. An identity beginning with "!" is
// a deliberately tagged Bedrock account and is returned unmodified.
func ExtractIdentity(order map[string]any) (identity string, source string, ok bool) {
	for _, s := range identityStrategies {
		if v := s.fn(order); v != "" {
			return v, s.name, true
		}
	}
	return "", "", false
}

// fromLineItemProperties scans each purchased item, first its properties
// array of {name, value} pairs, then the flattened properties_* fields some
// apps write directly on the item. This is the most common location.
func fromLineItemProperties(order map[string]any) string {
	for _, raw := range arrayField(order, "line_items") {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		if v := scanNameValuePairs(arrayField(item, "properties")); v != "" {
			return v
		}

		for _, field := range flattenedPropertyFields {
			if v := stringField(item, field); v != "" {
				return v
			}
		}
	}
	return ""
}

// fromNoteAttributes scans the order-level note_attributes array in order.
func fromNoteAttributes(order map[string]any) string {
	return scanNameValuePairs(arrayField(order, "note_attributes"))
}

// fromCustomerNote attempts structured "key: value" extraction from the
// buyer object's free-text note, then accepts the note verbatim only if the
// whole text matches the identity shape.
func fromCustomerNote(order map[string]any) string {
	customer := objectField(order, "customer")
	if customer == nil {
		return ""
	}
	return extractFromText(stringField(customer, "note"))
}

// fromOrderAttributes handles the generic order-level attributes field,
// which upstream delivers either as a name/value pair array or as a plain
// key->value object. Both shapes are supported.
func fromOrderAttributes(order map[string]any) string {
	raw, ok := order["attributes"]
	if !ok {
		return ""
	}

	switch attrs := raw.(type) {
	case []any:
		return scanNameValuePairs(attrs)
	case map[string]any:
		return scanAttributeMap(attrs)
	}
	return ""
}

// fromCartAttributes scans the cart-level attributes mapping.
func fromCartAttributes(order map[string]any) string {
	return scanAttributeMap(objectField(order, "cart_attributes"))
}

// fromOrderNote accepts the order-level note verbatim if non-empty. This is
// the lowest-confidence fallback: shops that instruct buyers to write their
// account name into the order note get exactly what was typed.
func fromOrderNote(order map[string]any) string {
	return stringField(order, "note")
}

// extractFromText pulls an identity out of free text: a "key: value"
// fragment for any synonym wins; otherwise the text itself is accepted only
// when it is nothing but a bare identity.
func extractFromText(text string) string {
	if text == "" {
		return ""
	}
	if m := keyedIdentityPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if identityShape.MatchString(text) {
		return text
	}
	return ""
}

// scanNameValuePairs walks an array of {name, value} objects and returns the
// first non-empty value whose name is an identity synonym.
func scanNameValuePairs(pairs []any) string {
	for _, raw := range pairs {
		pair, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(pair, "name")
		value := stringField(pair, "value")
		if name != "" && value != "" && isIdentitySynonym(name) {
			return value
		}
	}
	return ""
}

// scanAttributeMap walks a key->value object and returns the first non-empty
// string value whose key is an identity synonym.
func scanAttributeMap(attrs map[string]any) string {
	for key, raw := range attrs {
		if !isIdentitySynonym(key) {
			continue
		}
		if v, ok := raw.(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Account-variant tag scanning. This is independent of identity extraction:
// the tag can live in a different location than the identity itself.

// variantTagNames are the attribute/property names carrying the account
// variant tag.
var variantTagNames = map[string]struct{}{
	"account_type":           {},
	"minecraft_account_type": {},
}

func isVariantTagName(name string) bool {
	_, ok := variantTagNames[strings.ToLower(name)]
	return ok
}

// ExtractAccountVariant resolves the account-variant tag from order-level
// note attributes first, then per-item properties. Values are buyer-typed,
// so matching is case-insensitive; anything that is not recognizably
// Bedrock falls back to the Java (primary) variant.
func ExtractAccountVariant(order map[string]any) string {
	if v := scanVariantPairs(arrayField(order, "note_attributes")); v != "" {
		return canonicalVariant(v)
	}
	for _, raw := range arrayField(order, "line_items") {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v := scanVariantPairs(arrayField(item, "properties")); v != "" {
			return canonicalVariant(v)
		}
	}
	return types.AccountVariantJava
}

func canonicalVariant(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), types.AccountVariantBedrock) {
		return types.AccountVariantBedrock
	}
	return types.AccountVariantJava
}

func scanVariantPairs(pairs []any) string {
	for _, raw := range pairs {
		pair, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(pair, "name")
		value := stringField(pair, "value")
		if name != "" && value != "" && isVariantTagName(name) {
			return value
		}
	}
	return ""
}

// ApplyVariantPrefix prefixes a Bedrock identity with "!" unless it already
// carries the prefix. Applying the rule twice never double-prefixes.
func ApplyVariantPrefix(identity, variant string) string {
	if variant == types.AccountVariantBedrock && !strings.HasPrefix(identity, types.BedrockPrefix) {
		return types.BedrockPrefix + identity
	}
	return identity
}
