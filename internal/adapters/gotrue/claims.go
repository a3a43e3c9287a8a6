package gotrue

import (
	"errors"
	"fmt"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
)

// ClaimPaths are JMESPath expressions locating identity fields inside
// provider JSON payloads (verified token claims and signup responses).
// Deployments with non-standard claim layouts override them in config.
type ClaimPaths struct {
	Subject string
	Email   string
}

// DefaultClaimPaths cover a stock GoTrue deployment. The signup response
// nests the user object when auto-confirm is off, hence the alternation.
func DefaultClaimPaths() ClaimPaths {
	return ClaimPaths{
		Subject: "sub || user.id || id",
		Email:   "email || user.email",
	}
}

// claimMapper evaluates compiled claim paths against decoded JSON.
type claimMapper struct {
	subject jmespath.JMESPath
	email   jmespath.JMESPath
}

func newClaimMapper(paths ClaimPaths) (*claimMapper, error) {
	defaults := DefaultClaimPaths()
	if paths.Subject == "" {
		paths.Subject = defaults.Subject
	}
	if paths.Email == "" {
		paths.Email = defaults.Email
	}

	subject, err := jmespath.Compile(paths.Subject)
	if err != nil {
		return nil, fmt.Errorf("compile subject path %q: %w", paths.Subject, err)
	}
	email, err := jmespath.Compile(paths.Email)
	if err != nil {
		return nil, fmt.Errorf("compile email path %q: %w", paths.Email, err)
	}
	return &claimMapper{subject: subject, email: email}, nil
}

// Identity extracts the principal from decoded claim JSON. A missing
// subject is an error; a missing email is tolerated (some providers omit it
// on unconfirmed accounts).
func (m *claimMapper) Identity(claims any) (domainauth.Identity, error) {
	sub, err := m.stringAt(m.subject, claims)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract subject: %w", err)
	}
	if sub == "" {
		return domainauth.Identity{}, errors.New("claims carry no subject")
	}

	email, err := m.stringAt(m.email, claims)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract email: %w", err)
	}

	return domainauth.Identity{ID: sub, Email: email}, nil
}

func (m *claimMapper) stringAt(path jmespath.JMESPath, data any) (string, error) {
	v, err := path.Search(data)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("claim value %v is not a string", v)
	}
	return s, nil
}
