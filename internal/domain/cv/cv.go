package cv

import (
	"context"
	"errors"
)

// Profile is the whole CV aggregate. It is persisted as a single snapshot:
// writes replace every child collection, reads reassemble all of them.
type Profile struct {
	PersonalInfo    PersonalInfo    `json:"personal_info" yaml:"personal_info"`
	Experiences     []Experience    `json:"experiences" yaml:"experiences"`
	Education       []Education     `json:"education" yaml:"education"`
	SkillCategories []SkillCategory `json:"skill_categories" yaml:"skill_categories"`
	Projects        []Project       `json:"projects" yaml:"projects"`
	Languages       []Language      `json:"languages" yaml:"languages"`
	Certifications  []string        `json:"certifications" yaml:"certifications"`
	GithubSources   []GithubSource  `json:"github_sources" yaml:"github_sources"`
}

type PersonalInfo struct {
	Name        string       `json:"name" yaml:"name"`
	Title       string       `json:"title" yaml:"title"`
	Email       string       `json:"email" yaml:"email"`
	Phone       *string      `json:"phone,omitempty" yaml:"phone,omitempty"`
	Website     *string      `json:"website,omitempty" yaml:"website,omitempty"`
	Location    *string      `json:"location,omitempty" yaml:"location,omitempty"`
	Summary     string       `json:"summary" yaml:"summary"`
	SocialLinks []SocialLink `json:"social_links" yaml:"social_links"`
}

type SocialLink struct {
	Platform string `json:"platform" yaml:"platform"`
	URL      string `json:"url" yaml:"url"`
}

// Dates are kept as free-form strings ("2021-03", "2023 - present");
// the CV renders them verbatim.
type Experience struct {
	Company      string   `json:"company" yaml:"company"`
	Position     string   `json:"position" yaml:"position"`
	StartDate    string   `json:"start_date" yaml:"start_date"`
	EndDate      *string  `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Location     *string  `json:"location,omitempty" yaml:"location,omitempty"`
	Description  string   `json:"description" yaml:"description"`
	Achievements []string `json:"achievements" yaml:"achievements"`
	Technologies []string `json:"technologies" yaml:"technologies"`
}

type Education struct {
	Institution  string   `json:"institution" yaml:"institution"`
	Degree       string   `json:"degree" yaml:"degree"`
	Field        string   `json:"field" yaml:"field"`
	StartDate    string   `json:"start_date" yaml:"start_date"`
	EndDate      *string  `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Location     *string  `json:"location,omitempty" yaml:"location,omitempty"`
	GPA          *string  `json:"gpa,omitempty" yaml:"gpa,omitempty"`
	Achievements []string `json:"achievements" yaml:"achievements"`
}

type SkillCategory struct {
	Name   string   `json:"name" yaml:"name"`
	Skills []string `json:"skills" yaml:"skills"`
}

type Project struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	URL          *string  `json:"url,omitempty" yaml:"url,omitempty"`
	Repository   *string  `json:"repository,omitempty" yaml:"repository,omitempty"`
	Stars        *int64   `json:"stars,omitempty" yaml:"stars,omitempty"`
	Owner        *string  `json:"owner,omitempty" yaml:"owner,omitempty"`
	Technologies []string `json:"technologies" yaml:"technologies"`
	Highlights   []string `json:"highlights" yaml:"highlights"`
}

type Language struct {
	Language    string `json:"language" yaml:"language"`
	Proficiency string `json:"proficiency" yaml:"proficiency"`
}

// GithubSource points an external fetcher at a user and/or organization
// whose repositories supplement the project list. Only the pointer is
// persisted, never the fetched data.
type GithubSource struct {
	Username     *string `json:"username,omitempty" yaml:"username,omitempty"`
	Organization *string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

var ErrEmptyName = errors.New("personal info name is required")

func (p *Profile) Validate() error {
	if p.PersonalInfo.Name == "" {
		return ErrEmptyName
	}
	return nil
}

type Repository interface {
	CreateSchema(ctx context.Context) error
	Replace(ctx context.Context, profile *Profile) error
	Load(ctx context.Context) (*Profile, error)
}
