package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/minhtranq/folio/internal/domain/blog"
	"github.com/minhtranq/folio/pkg/apperror"
	"github.com/minhtranq/folio/pkg/logger"
)

type sqliteBlogRepo struct {
	bridge *Bridge
	logger logger.Logger
}

func NewSQLiteBlogRepo(bridge *Bridge, log logger.Logger) blog.Repository {
	return &sqliteBlogRepo{bridge: bridge, logger: log}
}

const postColumns = "id, title, slug, date, author, user_ref, excerpt, content, published, featured, image"

func scanPost(row *sql.Row) (*blog.Post, error) {
	p := &blog.Post{}
	var userRef, image sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Date, &p.Author,
		&userRef, &p.Excerpt, &p.Content, &p.Published, &p.Featured, &image)
	if err != nil {
		return nil, err
	}
	p.UserRef = nullToPtr(userRef)
	p.Image = nullToPtr(image)
	return p, nil
}

func scanPosts(rows *sql.Rows) ([]*blog.Post, error) {
	posts := make([]*blog.Post, 0)
	for rows.Next() {
		p := &blog.Post{}
		var userRef, image sql.NullString
		err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Date, &p.Author,
			&userRef, &p.Excerpt, &p.Content, &p.Published, &p.Featured, &image)
		if err != nil {
			rows.Close()
			return nil, apperror.NewInternal("scan post row", err)
		}
		p.UserRef = nullToPtr(userRef)
		p.Image = nullToPtr(image)
		posts = append(posts, p)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return posts, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// listWhere runs one posts query plus the tag/metadata queries for each
// returned row, all on the same borrowed connection.
func (r *sqliteBlogRepo) listWhere(ctx context.Context, builder sq.SelectBuilder) ([]*blog.Post, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("build posts query", err)
	}

	var posts []*blog.Post
	err = r.bridge.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return apperror.NewInternal("query posts", err)
		}
		posts, err = scanPosts(rows)
		if err != nil {
			return err
		}
		for _, p := range posts {
			if err := attachRelations(ctx, conn, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func attachRelations(ctx context.Context, conn *sql.Conn, p *blog.Post) error {
	tags, err := tagsForPost(ctx, conn, p.ID)
	if err != nil {
		return err
	}
	p.Tags = tags

	p.Metadata = make(map[string]string)
	rows, err := conn.QueryContext(ctx,
		`SELECT key, value FROM post_metadata WHERE post_id = ?`, p.ID)
	if err != nil {
		return apperror.NewInternal(fmt.Sprintf("query metadata for post %d", p.ID), err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return apperror.NewInternal("scan post metadata", err)
		}
		p.Metadata[k] = v
	}
	return closeRows(rows)
}

func tagsForPost(ctx context.Context, conn *sql.Conn, postID int64) ([]blog.Tag, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug
		FROM tags t
		JOIN post_tags pt ON t.id = pt.tag_id
		WHERE pt.post_id = ?
		ORDER BY t.name`, postID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Sprintf("query tags for post %d", postID), err)
	}
	tags := make([]blog.Tag, 0)
	for rows.Next() {
		var t blog.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			rows.Close()
			return nil, apperror.NewInternal("scan tag", err)
		}
		tags = append(tags, t)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return tags, nil
}

func postsBuilder() sq.SelectBuilder {
	return sq.Select(postColumns).From("posts").OrderBy("date DESC", "id DESC")
}

func (r *sqliteBlogRepo) ListAll(ctx context.Context) ([]*blog.Post, error) {
	return r.listWhere(ctx, postsBuilder())
}

func (r *sqliteBlogRepo) ListPublished(ctx context.Context) ([]*blog.Post, error) {
	return r.listWhere(ctx, postsBuilder().Where(sq.Eq{"published": true}))
}

func (r *sqliteBlogRepo) ListFeatured(ctx context.Context) ([]*blog.Post, error) {
	return r.listWhere(ctx, postsBuilder().Where(sq.Eq{"featured": true, "published": true}))
}

func (r *sqliteBlogRepo) ListByTag(ctx context.Context, tagSlug string) ([]*blog.Post, error) {
	builder := sq.Select(postColumns).From("posts").
		Where(sq.Expr(`id IN (
			SELECT pt.post_id FROM post_tags pt
			JOIN tags t ON t.id = pt.tag_id
			WHERE t.slug = ?)`, tagSlug)).
		OrderBy("date DESC", "id DESC")
	return r.listWhere(ctx, builder)
}

func (r *sqliteBlogRepo) Search(ctx context.Context, query string, publishedOnly bool) ([]*blog.Post, error) {
	pattern := "%" + query + "%"
	builder := postsBuilder().Where(sq.Or{
		sq.Like{"title": pattern},
		sq.Like{"content": pattern},
		sq.Like{"excerpt": pattern},
	})
	if publishedOnly {
		builder = builder.Where(sq.Eq{"published": true})
	}
	return r.listWhere(ctx, builder)
}

func (r *sqliteBlogRepo) FindByID(ctx context.Context, id int64) (*blog.Post, error) {
	return r.findOne(ctx,
		"SELECT "+postColumns+" FROM posts WHERE id = ?",
		fmt.Sprintf("%d", id), id)
}

func (r *sqliteBlogRepo) FindBySlug(ctx context.Context, slug string) (*blog.Post, error) {
	return r.findOne(ctx,
		"SELECT "+postColumns+" FROM posts WHERE slug = ?",
		slug, slug)
}

func (r *sqliteBlogRepo) findOne(ctx context.Context, query, identifier string, arg any) (*blog.Post, error) {
	var post *blog.Post
	err := r.bridge.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		p, err := scanPost(conn.QueryRowContext(ctx, query, arg))
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("post", identifier)
		}
		if err != nil {
			return apperror.NewInternal("query post "+identifier, err)
		}
		if err := attachRelations(ctx, conn, p); err != nil {
			return err
		}
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *sqliteBlogRepo) ListTags(ctx context.Context) ([]blog.Tag, error) {
	var tags []blog.Tag
	err := r.bridge.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT id, name, slug FROM tags ORDER BY name`)
		if err != nil {
			return apperror.NewInternal("query tags", err)
		}
		tags = make([]blog.Tag, 0)
		for rows.Next() {
			var t blog.Tag
			if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
				rows.Close()
				return apperror.NewInternal("scan tag", err)
			}
			tags = append(tags, t)
		}
		return closeRows(rows)
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// Save inserts (id zero) or updates (id set) the post, then re-links
// tags and metadata from the supplied post inside the same transaction:
// old link rows are cleared and the new set written. Tags are created on
// first use and never deleted here.
func (r *sqliteBlogRepo) Save(ctx context.Context, post *blog.Post) error {
	if err := post.Validate(); err != nil {
		return apperror.NewInvalidInput("post validation", err)
	}

	return r.bridge.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if post.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO posts (title, slug, date, author, user_ref, excerpt, content, published, featured, image)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				post.Title, post.Slug, post.Date, post.Author, post.UserRef,
				post.Excerpt, post.Content, post.Published, post.Featured, post.Image,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return apperror.NewConflict("post", "slug", post.Slug)
				}
				return apperror.NewInternal("insert post "+post.Slug, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperror.NewInternal("post id", err)
			}
			post.ID = id
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE posts SET title = ?, slug = ?, date = ?, author = ?, user_ref = ?,
					excerpt = ?, content = ?, published = ?, featured = ?, image = ?
				WHERE id = ?`,
				post.Title, post.Slug, post.Date, post.Author, post.UserRef,
				post.Excerpt, post.Content, post.Published, post.Featured, post.Image,
				post.ID,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return apperror.NewConflict("post", "slug", post.Slug)
				}
				return apperror.NewInternal(fmt.Sprintf("update post %d", post.ID), err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return apperror.NewInternal("update post rows affected", err)
			}
			if affected == 0 {
				return apperror.NewNotFound("post", fmt.Sprintf("%d", post.ID))
			}
		}

		if err := r.relinkTags(ctx, tx, post); err != nil {
			return err
		}
		return r.relinkMetadata(ctx, tx, post)
	})
}

func (r *sqliteBlogRepo) relinkTags(ctx context.Context, tx *sql.Tx, post *blog.Post) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM post_tags WHERE post_id = ?`, post.ID); err != nil {
		return apperror.NewInternal("clear post tags", err)
	}

	linked := make([]blog.Tag, 0, len(post.Tags))
	for _, t := range post.Tags {
		slug := t.Slug
		if slug == "" {
			slug = blog.Slugify(t.Name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name, slug) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			t.Name, slug); err != nil {
			if isUniqueViolation(err) {
				return apperror.NewConflict("tag", "name", t.Name)
			}
			return apperror.NewInternal("insert tag "+t.Name, err)
		}

		var tag blog.Tag
		err := tx.QueryRowContext(ctx,
			`SELECT id, name, slug FROM tags WHERE slug = ?`, slug).
			Scan(&tag.ID, &tag.Name, &tag.Slug)
		if err != nil {
			return apperror.NewInternal("lookup tag "+slug, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)`,
			post.ID, tag.ID); err != nil {
			return apperror.NewInternal("link tag "+slug, err)
		}
		linked = append(linked, tag)
	}
	post.Tags = linked
	return nil
}

func (r *sqliteBlogRepo) relinkMetadata(ctx context.Context, tx *sql.Tx, post *blog.Post) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM post_metadata WHERE post_id = ?`, post.ID); err != nil {
		return apperror.NewInternal("clear post metadata", err)
	}
	for k, v := range post.Metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_metadata (post_id, key, value) VALUES (?, ?, ?)`,
			post.ID, k, v); err != nil {
			return apperror.NewInternal("insert metadata "+k, err)
		}
	}
	return nil
}

// Delete removes the post; its tag links and metadata go with it via
// the cascade. Tags themselves outlive the posts that used them.
func (r *sqliteBlogRepo) Delete(ctx context.Context, id int64) error {
	return r.bridge.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return apperror.NewInternal(fmt.Sprintf("delete post %d", id), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return apperror.NewInternal("delete post rows affected", err)
		}
		if affected == 0 {
			return apperror.NewNotFound("post", fmt.Sprintf("%d", id))
		}
		return nil
	})
}
