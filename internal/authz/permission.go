// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"fmt"
	"strings"
)

// Wildcard matches any token in a permission segment.
const Wildcard = "*"

// Scope is the breadth of a permission.
type Scope string

const (
	ScopeOwn          Scope = "own"
	ScopeOrganization Scope = "organization"
	ScopeGlobal       Scope = "global"
	ScopeAny          Scope = Wildcard
)

// Valid reports whether s is a known scope or the wildcard.
func (s Scope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeOrganization, ScopeGlobal, ScopeAny:
		return true
	}
	return false
}

// Permission is a parsed "resource:action:scope" string.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// NewPermission builds a permission from its three segments.
func NewPermission(resource, action string, scope Scope) Permission {
	return Permission{Resource: resource, Action: action, Scope: scope}
}

// ParsePermission parses s into a Permission. Tokens must be lowercase
// [a-z0-9_.-] or "*".
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: %q must have exactly three segments", ErrInvalidPermission, s)
	}
	p := Permission{Resource: parts[0], Action: parts[1], Scope: Scope(parts[2])}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// MustParsePermission is ParsePermission for static catalogs.
func MustParsePermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks every segment of p.
func (p Permission) Validate() error {
	if !validToken(p.Resource) {
		return fmt.Errorf("%w: bad resource %q", ErrInvalidPermission, p.Resource)
	}
	if !validToken(p.Action) {
		return fmt.Errorf("%w: bad action %q", ErrInvalidPermission, p.Action)
	}
	if !p.Scope.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, p.Scope)
	}
	return nil
}

// IsConcrete reports whether no segment of p is a wildcard.
func (p Permission) IsConcrete() bool {
	return p.Resource != Wildcard && p.Action != Wildcard && p.Scope != ScopeAny
}

// String renders p in its canonical "resource:action:scope" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action + ":" + string(p.Scope)
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(b []byte) error {
	parsed, err := ParsePermission(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// WildcardCandidates returns the patterns tried after an exact miss, in
// resolution order. The first one present in a role wins.
func (p Permission) WildcardCandidates() []Permission {
	r, a, s := p.Resource, p.Action, p.Scope
	return []Permission{
		{Resource: r, Action: Wildcard, Scope: s},
		{Resource: r, Action: a, Scope: ScopeAny},
		{Resource: Wildcard, Action: a, Scope: s},
		{Resource: Wildcard, Action: Wildcard, Scope: s},
		{Resource: r, Action: Wildcard, Scope: ScopeAny},
		{Resource: Wildcard, Action: Wildcard, Scope: ScopeAny},
	}
}

func validToken(t string) bool {
	if t == Wildcard {
		return true
	}
	if t == "" {
		return false
	}
	for _, c := range t {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}
