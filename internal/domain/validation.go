package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex is what labels and relationship types must look like before
// they are placed into a store query.
var identifierRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ParseEntityType validates an entity type, ignoring case and surrounding space.
func ParseEntityType(s string) (EntityType, error) {
	et := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := entityLabels[et]; !ok {
		return "", fmt.Errorf("invalid entity type %q: must be one of: organization, person, profile, event, post, page, site, group, channel, symbol", s)
	}
	return et, nil
}

// ParseLabel validates a store label.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.TrimSpace(s))
	for _, known := range labelOrder {
		if known == l {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid label %q", s)
}

// NormalizeRelationship upper-cases a relationship type and maps spaces and
// hyphens to underscores. An empty type becomes RELATED_TO.
func NormalizeRelationship(s string) (RelationshipType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if norm == "" {
		return RelRelatedTo, nil
	}
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	rt := RelationshipType(norm)
	if err := ValidateRelationship(rt); err != nil {
		return "", err
	}
	return rt, nil
}

// ValidateRelationship checks membership in the relationship vocabulary.
func ValidateRelationship(rt RelationshipType) error {
	for _, known := range relationshipOrder {
		if known == rt {
			return nil
		}
	}
	return fmt.Errorf("invalid relationship type %q", string(rt))
}

// ValidateIdentifier reports whether s is safe to splice into a query as a
// label or relationship type.
func ValidateIdentifier(s string) error {
	if !identifierRegex.MatchString(s) {
		return fmt.Errorf("invalid identifier %q", s)
	}
	return nil
}
