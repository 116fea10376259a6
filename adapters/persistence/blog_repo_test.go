package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/minhtranq/folio/internal/config"
	"github.com/minhtranq/folio/internal/domain/blog"
	"github.com/minhtranq/folio/pkg/apperror"
	"github.com/minhtranq/folio/pkg/logger"
)

type BlogRepoTestSuite struct {
	suite.Suite
	pool *Pool
	repo blog.Repository
}

func TestBlogRepoSuite(t *testing.T) {
	suite.Run(t, new(BlogRepoTestSuite))
}

func (s *BlogRepoTestSuite) SetupSuite() {
	cfg := config.Config{}
	cfg.DB.Path = filepath.Join(s.T().TempDir(), "folio.db")
	cfg.DB.MaxConns = 3
	cfg.DB.ConnTimeout = time.Second
	cfg.DB.UseWAL = true

	pool, err := NewSQLitePool(cfg, logger.NewNop())
	s.Require().NoError(err)
	s.pool = pool
	s.repo = NewSQLiteBlogRepo(NewBridge(pool, logger.NewNop()), logger.NewNop())
}

func (s *BlogRepoTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.Require().NoError(s.pool.Close())
	}
}

func (s *BlogRepoTestSuite) SetupTest() {
	for _, table := range []string{"post_tags", "post_metadata", "posts", "tags"} {
		_, err := s.pool.DB().Exec("DELETE FROM " + table)
		s.Require().NoError(err)
	}
}

func (s *BlogRepoTestSuite) newPost(title, slug string, tags ...string) *blog.Post {
	p := &blog.Post{
		Title:     title,
		Slug:      slug,
		Date:      "2026-08-01",
		Author:    "An Nguyen",
		Excerpt:   "excerpt for " + title,
		Content:   "content for " + title,
		Published: true,
	}
	for _, name := range tags {
		p.Tags = append(p.Tags, blog.Tag{Name: name})
	}
	return p
}

func (s *BlogRepoTestSuite) Test_SaveAssignsIDAndFindBySlug() {
	ctx := context.Background()

	post := s.newPost("Hello", "hello", "Rust")
	s.Require().NoError(s.repo.Save(ctx, post))
	s.NotZero(post.ID)

	found, err := s.repo.FindBySlug(ctx, "hello")
	s.Require().NoError(err)
	s.Equal("Hello", found.Title)
	s.Require().Len(found.Tags, 1)
	s.Equal("Rust", found.Tags[0].Name)
	s.Equal("rust", found.Tags[0].Slug)
}

func (s *BlogRepoTestSuite) Test_TagsSurvivePostTagRemoval() {
	ctx := context.Background()

	post := s.newPost("Hello", "hello", "Rust")
	s.Require().NoError(s.repo.Save(ctx, post))

	// Update the same post with no tags: the link goes, the tag stays.
	post.Tags = nil
	s.Require().NoError(s.repo.Save(ctx, post))

	found, err := s.repo.FindBySlug(ctx, "hello")
	s.Require().NoError(err)
	s.Empty(found.Tags)

	tags, err := s.repo.ListTags(ctx)
	s.Require().NoError(err)
	s.Require().Len(tags, 1)
	s.Equal("Rust", tags[0].Name)
}

func (s *BlogRepoTestSuite) Test_UpsertIsIdempotent() {
	ctx := context.Background()

	post := s.newPost("Hello", "hello", "Go", "Web")
	s.Require().NoError(s.repo.Save(ctx, post))
	firstID := post.ID

	// Second save with the same id must not create a second row, and
	// the final tag set is exactly the last-supplied one.
	post.Tags = []blog.Tag{{Name: "Go"}}
	post.Content = "updated content"
	s.Require().NoError(s.repo.Save(ctx, post))
	s.Equal(firstID, post.ID)

	all, err := s.repo.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("updated content", all[0].Content)
	s.Require().Len(all[0].Tags, 1)
	s.Equal("Go", all[0].Tags[0].Name)
}

func (s *BlogRepoTestSuite) Test_SlugUniqueness() {
	ctx := context.Background()

	first := s.newPost("First", "shared-slug")
	s.Require().NoError(s.repo.Save(ctx, first))

	second := s.newPost("Second", "shared-slug")
	err := s.repo.Save(ctx, second)
	s.Require().Error(err)
	s.ErrorIs(err, apperror.ErrConflict)

	// The first post is intact.
	found, err := s.repo.FindBySlug(ctx, "shared-slug")
	s.Require().NoError(err)
	s.Equal("First", found.Title)
}

func (s *BlogRepoTestSuite) Test_DeleteCascades() {
	ctx := context.Background()

	post := s.newPost("Doomed", "doomed", "Go", "Rust")
	post.Metadata = map[string]string{"series": "intro", "reading_time": "4"}
	s.Require().NoError(s.repo.Save(ctx, post))

	s.Require().NoError(s.repo.Delete(ctx, post.ID))

	for _, table := range []string{"post_tags", "post_metadata"} {
		var n int
		err := s.pool.DB().QueryRow("SELECT COUNT(*) FROM "+table+" WHERE post_id = ?", post.ID).Scan(&n)
		s.Require().NoError(err)
		s.Zero(n, "%s rows should cascade", table)
	}

	_, err := s.repo.FindByID(ctx, post.ID)
	s.ErrorIs(err, apperror.ErrNotFound)

	tags, err := s.repo.ListTags(ctx)
	s.Require().NoError(err)
	s.Len(tags, 2, "tags outlive the posts that used them")
}

func (s *BlogRepoTestSuite) Test_DeleteMissingPost() {
	err := s.repo.Delete(context.Background(), 9999)
	s.ErrorIs(err, apperror.ErrNotFound)
}

func (s *BlogRepoTestSuite) Test_MetadataRoundTrip() {
	ctx := context.Background()

	post := s.newPost("Meta", "meta")
	post.Metadata = map[string]string{"series": "deep-dive", "lang": "en"}
	s.Require().NoError(s.repo.Save(ctx, post))

	found, err := s.repo.FindByID(ctx, post.ID)
	s.Require().NoError(err)
	s.Equal(post.Metadata, found.Metadata)

	// Re-linking replaces the old metadata set entirely.
	post.Metadata = map[string]string{"lang": "vi"}
	s.Require().NoError(s.repo.Save(ctx, post))

	found, err = s.repo.FindByID(ctx, post.ID)
	s.Require().NoError(err)
	s.Equal(map[string]string{"lang": "vi"}, found.Metadata)
}

func (s *BlogRepoTestSuite) Test_PublishedAndFeaturedFilters() {
	ctx := context.Background()

	published := s.newPost("Published", "published")
	s.Require().NoError(s.repo.Save(ctx, published))

	draft := s.newPost("Draft", "draft")
	draft.Published = false
	s.Require().NoError(s.repo.Save(ctx, draft))

	featured := s.newPost("Featured", "featured")
	featured.Featured = true
	s.Require().NoError(s.repo.Save(ctx, featured))

	publishedPosts, err := s.repo.ListPublished(ctx)
	s.Require().NoError(err)
	s.Len(publishedPosts, 2)

	featuredPosts, err := s.repo.ListFeatured(ctx)
	s.Require().NoError(err)
	s.Require().Len(featuredPosts, 1)
	s.Equal("Featured", featuredPosts[0].Title)

	all, err := s.repo.ListAll(ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *BlogRepoTestSuite) Test_ListByTag() {
	ctx := context.Background()

	s.Require().NoError(s.repo.Save(ctx, s.newPost("Go post", "go-post", "Go")))
	s.Require().NoError(s.repo.Save(ctx, s.newPost("Rust post", "rust-post", "Rust")))
	s.Require().NoError(s.repo.Save(ctx, s.newPost("Both", "both", "Go", "Rust")))

	goPosts, err := s.repo.ListByTag(ctx, "go")
	s.Require().NoError(err)
	s.Len(goPosts, 2)

	rustPosts, err := s.repo.ListByTag(ctx, "rust")
	s.Require().NoError(err)
	s.Len(rustPosts, 2)

	none, err := s.repo.ListByTag(ctx, "zig")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *BlogRepoTestSuite) Test_Search() {
	ctx := context.Background()

	sqlitePost := s.newPost("SQLite internals", "sqlite-internals")
	sqlitePost.Content = "b-tree pages and the rollback journal"
	s.Require().NoError(s.repo.Save(ctx, sqlitePost))

	draft := s.newPost("Draft about sqlite", "sqlite-draft")
	draft.Published = false
	s.Require().NoError(s.repo.Save(ctx, draft))

	other := s.newPost("Gardening", "gardening")
	other.Excerpt = "tomatoes, not databases"
	s.Require().NoError(s.repo.Save(ctx, other))

	// Title match, published only.
	results, err := s.repo.Search(ctx, "SQLite", true)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal("sqlite-internals", results[0].Slug)

	// Drafts included.
	results, err = s.repo.Search(ctx, "sqlite", false)
	s.Require().NoError(err)
	s.Len(results, 2)

	// Content match.
	results, err = s.repo.Search(ctx, "rollback journal", false)
	s.Require().NoError(err)
	s.Require().Len(results, 1)

	// Excerpt match.
	results, err = s.repo.Search(ctx, "tomatoes", false)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal("gardening", results[0].Slug)
}

func (s *BlogRepoTestSuite) Test_InvalidSlugRejected() {
	post := s.newPost("Bad", "Not A Slug!")
	err := s.repo.Save(context.Background(), post)
	s.Require().Error(err)
	s.ErrorIs(err, apperror.ErrInvalidInput)
}

func (s *BlogRepoTestSuite) Test_FindByIDMissing() {
	_, err := s.repo.FindByID(context.Background(), 424242)
	s.ErrorIs(err, apperror.ErrNotFound)
}
