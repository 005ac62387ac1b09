package model

import (
	"fmt"
	"sort"
)

// Profile holds the optional, user-editable fields. These are the only
// fields that travel through the write-behind path.
type Profile struct {
	Name        string `json:"name" bson:"name"`
	Bio         string `json:"bio" bson:"bio"`
	AvatarURL   string `json:"avatar_url" bson:"avatar_url"`
	GithubURL   string `json:"github_url" bson:"github_url"`
	LinkedinURL string `json:"linkedin_url" bson:"linkedin_url"`
	TwitterURL  string `json:"twitter_url" bson:"twitter_url"`
}

// Profile field names. They double as JSON keys, MySQL column names and
// document paths (prefixed by "profile.").
const (
	FieldName        = "name"
	FieldBio         = "bio"
	FieldAvatarURL   = "avatar_url"
	FieldGithubURL   = "github_url"
	FieldLinkedinURL = "linkedin_url"
	FieldTwitterURL  = "twitter_url"
)

// ProfilePatch is a partial profile update keyed by field name. Applying the
// same patch twice yields the same profile.
type ProfilePatch map[string]string

func (p *Profile) field(name string) *string {
	switch name {
	case FieldName:
		return &p.Name
	case FieldBio:
		return &p.Bio
	case FieldAvatarURL:
		return &p.AvatarURL
	case FieldGithubURL:
		return &p.GithubURL
	case FieldLinkedinURL:
		return &p.LinkedinURL
	case FieldTwitterURL:
		return &p.TwitterURL
	}
	return nil
}

// Validate rejects empty patches and unknown field names.
func (pp ProfilePatch) Validate() error {
	if len(pp) == 0 {
		return fmt.Errorf("empty profile patch")
	}
	var zero Profile
	for k := range pp {
		if zero.field(k) == nil {
			return fmt.Errorf("unknown profile field %q", k)
		}
	}
	return nil
}

// Keys returns the patch field names in a stable order.
func (pp ProfilePatch) Keys() []string {
	keys := make([]string, 0, len(pp))
	for k := range pp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply shallow-merges the patch into p. Unknown keys are ignored; callers
// validate first.
func (p *Profile) Apply(pp ProfilePatch) {
	for k, v := range pp {
		if dst := p.field(k); dst != nil {
			*dst = v
		}
	}
}
