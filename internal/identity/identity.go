// Package identity assigns the business-facing property code and the URL slugs used to
// address properties and blog posts.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
)

// DefaultMaxSlugAttempts bounds ResolveUniqueSlug when no explicit bound is configured.
const DefaultMaxSlugAttempts = 1000

// SlugPattern matches every slug DeriveSlug can produce.
var SlugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	hyphenRuns      = regexp.MustCompile(`-+`)
)

// AssignPropertyID formats the code for the seq-th property of the given type,
// e.g. ("house", 1) -> "EGB-HOU-00001".
func AssignPropertyID(propertyType models.PropertyType, seq int64) (string, error) {
	if !propertyType.Valid() {
		return "", apperrors.Validation("invalid property type %q", propertyType)
	}
	if seq < 1 {
		return "", apperrors.Validation("property sequence must be positive, got %d", seq)
	}
	prefix := strings.ToUpper(string(propertyType)[:3])
	return fmt.Sprintf("EGB-%s-%05d", prefix, seq), nil
}

// DeriveSlug turns a display name into a slug candidate. The result is empty when the name
// contains no ASCII letters or digits.
func DeriveSlug(name string) string {
	s := strings.ToLower(name)
	s = disallowedChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = whitespaceRuns.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DeriveSlugOr derives a slug from name, or from fallback when name yields nothing.
func DeriveSlugOr(name, fallback string) string {
	if slug := DeriveSlug(name); slug != "" {
		return slug
	}
	return DeriveSlug(fallback)
}

// SlugLookup reports whether a slug is held by any record other than excludeID.
// An empty excludeID excludes nothing.
type SlugLookup interface {
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
}

// SlugLookupFunc adapts a function to SlugLookup.
type SlugLookupFunc func(ctx context.Context, slug, excludeID string) (bool, error)

func (f SlugLookupFunc) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	return f(ctx, slug, excludeID)
}

// Resolver finds free slugs against a lookup, giving up after MaxAttempts suffixes.
type Resolver struct {
	Lookup      SlugLookup
	MaxAttempts int
}

// ResolveUniqueSlug is Resolver.Resolve with DefaultMaxSlugAttempts.
func ResolveUniqueSlug(ctx context.Context, lookup SlugLookup, candidate, excludeID string) (string, error) {
	return Resolver{Lookup: lookup, MaxAttempts: DefaultMaxSlugAttempts}.Resolve(ctx, candidate, excludeID)
}

// Resolve returns candidate if free, otherwise the first free of candidate-1, candidate-2, ...
func (r Resolver) Resolve(ctx context.Context, candidate, excludeID string) (string, error) {
	if candidate == "" {
		return "", apperrors.Validation("cannot resolve an empty slug")
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxSlugAttempts
	}

	slug := candidate
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			slug = fmt.Sprintf("%s-%d", candidate, attempt)
		}
		taken, err := r.Lookup.SlugTaken(ctx, slug, excludeID)
		if err != nil {
			return "", apperrors.Unexpected(err, "failed to check slug availability")
		}
		if !taken {
			return slug, nil
		}
	}
	return "", apperrors.Conflict("no free slug for %q after %d attempts", candidate, maxAttempts)
}

// ShouldRefreshSlug reports whether a rename from oldName to newName requires a new slug.
func ShouldRefreshSlug(oldName, newName, currentSlug string) bool {
	if oldName == newName {
		return false
	}
	return currentSlug == "" || DeriveSlug(newName) != currentSlug
}
