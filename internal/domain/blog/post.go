package blog

import (
	"context"
	"errors"
	"regexp"
)

type Post struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Slug      string            `json:"slug"`
	Date      string            `json:"date"`
	Author    string            `json:"author"`
	UserRef   *string           `json:"user_ref,omitempty"`
	Excerpt   string            `json:"excerpt"`
	Content   string            `json:"content"`
	Published bool              `json:"published"`
	Featured  bool              `json:"featured"`
	Image     *string           `json:"image,omitempty"`
	Tags      []Tag             `json:"tags"`
	Metadata  map[string]string `json:"metadata"`
}

var (
	ErrInvalidSlug = errors.New("slug only includes lowercase letter, digit and -")
	slugRegex      = regexp.MustCompile(`^[a-z0-9-]+$`)
)

func (p *Post) Validate() error {
	if !slugRegex.MatchString(p.Slug) {
		return ErrInvalidSlug
	}
	return nil
}

type Repository interface {
	ListAll(ctx context.Context) ([]*Post, error)
	FindByID(ctx context.Context, id int64) (*Post, error)
	FindBySlug(ctx context.Context, slug string) (*Post, error)
	ListPublished(ctx context.Context) ([]*Post, error)
	ListFeatured(ctx context.Context) ([]*Post, error)
	ListByTag(ctx context.Context, tagSlug string) ([]*Post, error)
	ListTags(ctx context.Context) ([]Tag, error)
	// Save inserts the post when ID is zero and assigns the new id;
	// otherwise it updates the row in place. Tags and metadata are
	// re-linked from the supplied post either way.
	Save(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, query string, publishedOnly bool) ([]*Post, error)
}
