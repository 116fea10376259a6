package blog

import "strings"

// Tag has its own lifecycle: it is created on first use and survives
// the deletion of every post that referenced it.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Slugify derives a URL-safe slug from a tag name.
func Slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
