package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/apperr"
	"github.com/iliyamo/devhub-auth/internal/model"
)

// Request bodies and their constraints. Email addresses are trimmed and
// lower-cased by the handlers before they reach the services.

type profileFields struct {
	Name        string `json:"name" validate:"max=100"`
	Bio         string `json:"bio" validate:"max=500"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
	GithubURL   string `json:"github_url" validate:"omitempty,url"`
	LinkedinURL string `json:"linkedin_url" validate:"omitempty,url"`
	TwitterURL  string `json:"twitter_url" validate:"omitempty,url"`
}

func (p profileFields) model() model.Profile {
	return model.Profile{
		Name:        strings.TrimSpace(p.Name),
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		GithubURL:   p.GithubURL,
		LinkedinURL: p.LinkedinURL,
		TwitterURL:  p.TwitterURL,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	profileFields
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

// updateProfileRequest is a partial update: absent fields are left alone,
// an empty string clears the field.
type updateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Bio         *string `json:"bio" validate:"omitempty,max=500"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url|len=0"`
	GithubURL   *string `json:"github_url" validate:"omitempty,url|len=0"`
	LinkedinURL *string `json:"linkedin_url" validate:"omitempty,url|len=0"`
	TwitterURL  *string `json:"twitter_url" validate:"omitempty,url|len=0"`
}

func (r updateProfileRequest) patch() model.ProfilePatch {
	pp := model.ProfilePatch{}
	set := func(field string, v *string) {
		if v != nil {
			pp[field] = *v
		}
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		set(model.FieldName, &name)
	}
	set(model.FieldBio, r.Bio)
	set(model.FieldAvatarURL, r.AvatarURL)
	set(model.FieldGithubURL, r.GithubURL)
	set(model.FieldLinkedinURL, r.LinkedinURL)
	set(model.FieldTwitterURL, r.TwitterURL)
	return pp
}

func (r *registerRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Username = strings.TrimSpace(r.Username)
}

func (r *loginRequest) normalize()          { r.Email = normalizeEmail(r.Email) }
func (r *forgotPasswordRequest) normalize() { r.Email = normalizeEmail(r.Email) }

type normalizer interface{ normalize() }

// bindAndValidate decodes the body into req, normalizes it and runs the
// validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if n, ok := req.(normalizer); ok {
		n.normalize()
	}
	return c.Validate(req)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
