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

package tenant

import (
	"fmt"
	"maps"
	"time"
)

// Plan is an organization's subscription tier.
type Plan string

const (
	PlanTrial        Plan = "trial"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// planSeats holds the seat limit of each plan. Zero means unlimited.
var planSeats = map[Plan]int{
	PlanTrial:        5,
	PlanStarter:      25,
	PlanProfessional: 100,
	PlanEnterprise:   0,
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planSeats[p]
	return ok
}

// MaxUsers returns the seat limit of the plan. Zero means unlimited.
func (p Plan) MaxUsers() int {
	return planSeats[p]
}

// ParsePlan parses a plan name. An empty name is the trial plan.
func ParsePlan(s string) (Plan, error) {
	if s == "" {
		return PlanTrial, nil
	}
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}

// Organization is a tenant. Organizations are deactivated, never deleted.
type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Domain    *string        `json:"domain,omitempty"`
	Plan      Plan           `json:"plan"`
	MaxUsers  int            `json:"max_users"`
	UserCount int            `json:"user_count"`
	Active    bool           `json:"active"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SeatsAvailable reports whether another active user fits the seat limit.
func (o *Organization) SeatsAvailable(activeUsers int) bool {
	return o.MaxUsers <= 0 || activeUsers < o.MaxUsers
}

// Clone returns a deep copy of the organization.
func (o *Organization) Clone() *Organization {
	c := *o
	if o.Domain != nil {
		d := *o.Domain
		c.Domain = &d
	}
	c.Settings = maps.Clone(o.Settings)
	return &c
}
