package service

import (
	"strings"

	"github.com/lumacare/backoffice/domains/signatures/be/provider"
)

// SignerInput is the caller-supplied signer information before role binding.
type SignerInput struct {
	Name  string
	Email string
}

// ResolveRoles binds signers positionally onto the template's ordered roles
// and returns the exact assignment a provider expects. Roles left without a
// real signer are filled with the fixed placeholder identity. Templates
// without declared roles (JotForm) yield exactly one synthetic "Signer" role
// per supplied signer.
func ResolveRoles(templateRoles []string, signers []SignerInput) ([]SignerRole, error) {
	if len(templateRoles) == 0 {
		resolved := make([]SignerRole, 0, len(signers))
		for _, signer := range signers {
			resolved = append(resolved, SignerRole{
				RoleName:    provider.DefaultSignerRole,
				SignerName:  signer.Name,
				SignerEmail: signer.Email,
			})
		}
		return resolved, nil
	}

	if len(signers) > len(templateRoles) {
		return nil, &RoleMismatchError{Declared: len(templateRoles), Supplied: len(signers)}
	}

	resolved := make([]SignerRole, 0, len(templateRoles))
	for i, roleName := range templateRoles {
		role := SignerRole{RoleName: roleName}
		if i < len(signers) {
			role.SignerName = signers[i].Name
			role.SignerEmail = signers[i].Email
		} else {
			role.SignerName = provider.PlaceholderSignerName
			role.SignerEmail = provider.PlaceholderSignerEmail
		}
		resolved = append(resolved, role)
	}

	return resolved, nil
}

// MergeRoleValues re-resolves roles after a template or provider change while
// preserving any signer details the caller already entered for roles that
// survive the change.
func MergeRoleValues(previous, next []SignerRole) []SignerRole {
	byRole := make(map[string]SignerRole, len(previous))
	for _, role := range previous {
		byRole[strings.ToLower(role.RoleName)] = role
	}

	merged := make([]SignerRole, len(next))
	for i, role := range next {
		merged[i] = role
		prev, ok := byRole[strings.ToLower(role.RoleName)]
		if !ok {
			continue
		}
		if prev.SignerName != "" && prev.SignerName != provider.PlaceholderSignerName {
			merged[i].SignerName = prev.SignerName
		}
		if prev.SignerEmail != "" && prev.SignerEmail != provider.PlaceholderSignerEmail {
			merged[i].SignerEmail = prev.SignerEmail
		}
	}

	return merged
}
