package persistence

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/minhtranq/folio/internal/domain/cv"
	"github.com/minhtranq/folio/pkg/apperror"
	"github.com/minhtranq/folio/pkg/logger"
)

// sqliteCVRepo persists the singleton CV aggregate. Writes are a full
// replace inside one transaction; reads reassemble the whole aggregate.
type sqliteCVRepo struct {
	bridge *Bridge
	logger logger.Logger
}

func NewSQLiteCVRepo(bridge *Bridge, log logger.Logger) cv.Repository {
	return &sqliteCVRepo{bridge: bridge, logger: log}
}

// CreateSchema applies the CV table set. Every statement is CREATE TABLE
// IF NOT EXISTS, so calling it against a migrated database is harmless.
func (r *sqliteCVRepo) CreateSchema(ctx context.Context) error {
	ddl, err := fs.ReadFile(migrationFS, "migrations/001_cv.up.sql")
	if err != nil {
		return apperror.NewInternal("read cv schema", err)
	}
	return r.bridge.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, string(ddl)); err != nil {
			return apperror.NewInternal("create cv schema", err)
		}
		return nil
	})
}

// Replace writes the supplied profile as the new snapshot: all prior
// rows are deleted and the aggregate reinserted in dependency order.
// Any failure rolls the whole transaction back, so a partial replace is
// never observable.
func (r *sqliteCVRepo) Replace(ctx context.Context, profile *cv.Profile) error {
	if err := profile.Validate(); err != nil {
		return apperror.NewInvalidInput("profile validation", err)
	}

	return r.bridge.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Parents cascade to their child tables.
		for _, table := range []string{
			"experiences", "education", "skill_categories", "projects",
			"languages", "certifications", "github_sources", "personal_info",
		} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return apperror.NewInternal("clear table "+table, err)
			}
		}

		info := profile.PersonalInfo
		_, err := tx.ExecContext(ctx, `
			INSERT INTO personal_info (id, name, title, email, phone, website, location, summary)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
			info.Name, info.Title, info.Email, info.Phone, info.Website, info.Location, info.Summary,
		)
		if err != nil {
			return apperror.NewInternal("insert personal_info", err)
		}
		for _, link := range info.SocialLinks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO social_links (personal_info_id, platform, url) VALUES (1, ?, ?)`,
				link.Platform, link.URL)
			if err != nil {
				return apperror.NewInternal("insert social_link "+link.Platform, err)
			}
		}

		for _, exp := range profile.Experiences {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO experiences (company, position, start_date, end_date, location, description)
				VALUES (?, ?, ?, ?, ?, ?)`,
				exp.Company, exp.Position, exp.StartDate, exp.EndDate, exp.Location, exp.Description,
			)
			if err != nil {
				return apperror.NewInternal("insert experience "+exp.Company, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperror.NewInternal("experience id", err)
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO experience_achievements (experience_id, achievement) VALUES (?, ?)`,
				id, exp.Achievements); err != nil {
				return err
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO experience_technologies (experience_id, technology) VALUES (?, ?)`,
				id, exp.Technologies); err != nil {
				return err
			}
		}

		for _, edu := range profile.Education {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO education (institution, degree, field, start_date, end_date, location, gpa)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				edu.Institution, edu.Degree, edu.Field, edu.StartDate, edu.EndDate, edu.Location, edu.GPA,
			)
			if err != nil {
				return apperror.NewInternal("insert education "+edu.Institution, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperror.NewInternal("education id", err)
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO education_achievements (education_id, achievement) VALUES (?, ?)`,
				id, edu.Achievements); err != nil {
				return err
			}
		}

		for _, cat := range profile.SkillCategories {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO skill_categories (name) VALUES (?)`, cat.Name)
			if err != nil {
				return apperror.NewInternal("insert skill_category "+cat.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperror.NewInternal("skill_category id", err)
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO skills (category_id, skill) VALUES (?, ?)`,
				id, cat.Skills); err != nil {
				return err
			}
		}

		for _, proj := range profile.Projects {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO projects (name, description, url, repository, stars, owner)
				VALUES (?, ?, ?, ?, ?, ?)`,
				proj.Name, proj.Description, proj.URL, proj.Repository, proj.Stars, proj.Owner,
			)
			if err != nil {
				return apperror.NewInternal("insert project "+proj.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperror.NewInternal("project id", err)
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO project_technologies (project_id, technology) VALUES (?, ?)`,
				id, proj.Technologies); err != nil {
				return err
			}
			if err := insertChildStrings(ctx, tx,
				`INSERT INTO project_highlights (project_id, highlight) VALUES (?, ?)`,
				id, proj.Highlights); err != nil {
				return err
			}
		}

		for _, lang := range profile.Languages {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO languages (language, proficiency) VALUES (?, ?)`,
				lang.Language, lang.Proficiency)
			if err != nil {
				return apperror.NewInternal("insert language "+lang.Language, err)
			}
		}

		for _, cert := range profile.Certifications {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO certifications (certification) VALUES (?)`, cert)
			if err != nil {
				return apperror.NewInternal("insert certification", err)
			}
		}

		for _, src := range profile.GithubSources {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO github_sources (username, organization) VALUES (?, ?)`,
				src.Username, src.Organization)
			if err != nil {
				return apperror.NewInternal("insert github_source", err)
			}
		}

		return nil
	})
}

func insertChildStrings(ctx context.Context, tx *sql.Tx, query string, parentID int64, values []string) error {
	for _, v := range values {
		if _, err := tx.ExecContext(ctx, query, parentID, v); err != nil {
			return apperror.NewInternal("insert child row", err)
		}
	}
	return nil
}

// Load reassembles the aggregate: the singleton row first, then one
// query per child collection per parent row. The row counts here are
// small enough that the per-parent queries are not worth batching.
func (r *sqliteCVRepo) Load(ctx context.Context) (*cv.Profile, error) {
	profile := &cv.Profile{}

	err := r.bridge.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var phone, website, location sql.NullString
		info := &profile.PersonalInfo
		err := conn.QueryRowContext(ctx, `
			SELECT name, title, email, phone, website, location, summary
			FROM personal_info WHERE id = 1`).
			Scan(&info.Name, &info.Title, &info.Email, &phone, &website, &location, &info.Summary)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("profile", "singleton")
		}
		if err != nil {
			return apperror.NewInternal("query personal_info", err)
		}
		info.Phone = nullToPtr(phone)
		info.Website = nullToPtr(website)
		info.Location = nullToPtr(location)

		info.SocialLinks = make([]cv.SocialLink, 0)
		rows, err := conn.QueryContext(ctx,
			`SELECT platform, url FROM social_links WHERE personal_info_id = 1 ORDER BY id`)
		if err != nil {
			return apperror.NewInternal("query social_links", err)
		}
		for rows.Next() {
			var link cv.SocialLink
			if err := rows.Scan(&link.Platform, &link.URL); err != nil {
				rows.Close()
				return apperror.NewInternal("scan social_link", err)
			}
			info.SocialLinks = append(info.SocialLinks, link)
		}
		if err := closeRows(rows); err != nil {
			return err
		}

		if err := r.loadExperiences(ctx, conn, profile); err != nil {
			return err
		}
		if err := r.loadEducation(ctx, conn, profile); err != nil {
			return err
		}
		if err := r.loadSkillCategories(ctx, conn, profile); err != nil {
			return err
		}
		if err := r.loadProjects(ctx, conn, profile); err != nil {
			return err
		}

		profile.Languages = make([]cv.Language, 0)
		rows, err = conn.QueryContext(ctx,
			`SELECT language, proficiency FROM languages ORDER BY id`)
		if err != nil {
			return apperror.NewInternal("query languages", err)
		}
		for rows.Next() {
			var lang cv.Language
			if err := rows.Scan(&lang.Language, &lang.Proficiency); err != nil {
				rows.Close()
				return apperror.NewInternal("scan language", err)
			}
			profile.Languages = append(profile.Languages, lang)
		}
		if err := closeRows(rows); err != nil {
			return err
		}

		profile.Certifications, err = queryStrings(ctx, conn,
			`SELECT certification FROM certifications ORDER BY id`)
		if err != nil {
			return err
		}

		profile.GithubSources = make([]cv.GithubSource, 0)
		rows, err = conn.QueryContext(ctx,
			`SELECT username, organization FROM github_sources ORDER BY id`)
		if err != nil {
			return apperror.NewInternal("query github_sources", err)
		}
		for rows.Next() {
			var username, organization sql.NullString
			if err := rows.Scan(&username, &organization); err != nil {
				rows.Close()
				return apperror.NewInternal("scan github_source", err)
			}
			profile.GithubSources = append(profile.GithubSources, cv.GithubSource{
				Username:     nullToPtr(username),
				Organization: nullToPtr(organization),
			})
		}
		return closeRows(rows)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *sqliteCVRepo) loadExperiences(ctx context.Context, conn *sql.Conn, profile *cv.Profile) error {
	type expRow struct {
		id  int64
		exp cv.Experience
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, company, position, start_date, end_date, location, description
		FROM experiences ORDER BY id`)
	if err != nil {
		return apperror.NewInternal("query experiences", err)
	}
	var parents []expRow
	for rows.Next() {
		var row expRow
		var endDate, location sql.NullString
		if err := rows.Scan(&row.id, &row.exp.Company, &row.exp.Position,
			&row.exp.StartDate, &endDate, &location, &row.exp.Description); err != nil {
			rows.Close()
			return apperror.NewInternal("scan experience", err)
		}
		row.exp.EndDate = nullToPtr(endDate)
		row.exp.Location = nullToPtr(location)
		parents = append(parents, row)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	profile.Experiences = make([]cv.Experience, 0, len(parents))
	for _, row := range parents {
		row.exp.Achievements, err = queryStrings(ctx, conn,
			`SELECT achievement FROM experience_achievements WHERE experience_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		row.exp.Technologies, err = queryStrings(ctx, conn,
			`SELECT technology FROM experience_technologies WHERE experience_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		profile.Experiences = append(profile.Experiences, row.exp)
	}
	return nil
}

func (r *sqliteCVRepo) loadEducation(ctx context.Context, conn *sql.Conn, profile *cv.Profile) error {
	type eduRow struct {
		id  int64
		edu cv.Education
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, institution, degree, field, start_date, end_date, location, gpa
		FROM education ORDER BY id`)
	if err != nil {
		return apperror.NewInternal("query education", err)
	}
	var parents []eduRow
	for rows.Next() {
		var row eduRow
		var endDate, location, gpa sql.NullString
		if err := rows.Scan(&row.id, &row.edu.Institution, &row.edu.Degree, &row.edu.Field,
			&row.edu.StartDate, &endDate, &location, &gpa); err != nil {
			rows.Close()
			return apperror.NewInternal("scan education", err)
		}
		row.edu.EndDate = nullToPtr(endDate)
		row.edu.Location = nullToPtr(location)
		row.edu.GPA = nullToPtr(gpa)
		parents = append(parents, row)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	profile.Education = make([]cv.Education, 0, len(parents))
	for _, row := range parents {
		row.edu.Achievements, err = queryStrings(ctx, conn,
			`SELECT achievement FROM education_achievements WHERE education_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		profile.Education = append(profile.Education, row.edu)
	}
	return nil
}

func (r *sqliteCVRepo) loadSkillCategories(ctx context.Context, conn *sql.Conn, profile *cv.Profile) error {
	type catRow struct {
		id  int64
		cat cv.SkillCategory
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, name FROM skill_categories ORDER BY id`)
	if err != nil {
		return apperror.NewInternal("query skill_categories", err)
	}
	var parents []catRow
	for rows.Next() {
		var row catRow
		if err := rows.Scan(&row.id, &row.cat.Name); err != nil {
			rows.Close()
			return apperror.NewInternal("scan skill_category", err)
		}
		parents = append(parents, row)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	profile.SkillCategories = make([]cv.SkillCategory, 0, len(parents))
	for _, row := range parents {
		row.cat.Skills, err = queryStrings(ctx, conn,
			`SELECT skill FROM skills WHERE category_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		profile.SkillCategories = append(profile.SkillCategories, row.cat)
	}
	return nil
}

func (r *sqliteCVRepo) loadProjects(ctx context.Context, conn *sql.Conn, profile *cv.Profile) error {
	type projRow struct {
		id   int64
		proj cv.Project
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, name, description, url, repository, stars, owner
		FROM projects ORDER BY id`)
	if err != nil {
		return apperror.NewInternal("query projects", err)
	}
	var parents []projRow
	for rows.Next() {
		var row projRow
		var url, repository, owner sql.NullString
		var stars sql.NullInt64
		if err := rows.Scan(&row.id, &row.proj.Name, &row.proj.Description,
			&url, &repository, &stars, &owner); err != nil {
			rows.Close()
			return apperror.NewInternal("scan project", err)
		}
		row.proj.URL = nullToPtr(url)
		row.proj.Repository = nullToPtr(repository)
		row.proj.Owner = nullToPtr(owner)
		if stars.Valid {
			row.proj.Stars = &stars.Int64
		}
		parents = append(parents, row)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	profile.Projects = make([]cv.Project, 0, len(parents))
	for _, row := range parents {
		row.proj.Technologies, err = queryStrings(ctx, conn,
			`SELECT technology FROM project_technologies WHERE project_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		row.proj.Highlights, err = queryStrings(ctx, conn,
			`SELECT highlight FROM project_highlights WHERE project_id = ? ORDER BY id`, row.id)
		if err != nil {
			return err
		}
		profile.Projects = append(profile.Projects, row.proj)
	}
	return nil
}

func queryStrings(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.NewInternal("query child strings", err)
	}
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, apperror.NewInternal("scan child string", err)
		}
		out = append(out, s)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return apperror.NewInternal("iterate rows", err)
	}
	return rows.Close()
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}
