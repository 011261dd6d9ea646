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

// Package boundary defines the index that records which organization owns
// each resource. A resource absent from the index belongs to no one.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrBoundaryNotFound   = errors.New("data boundary not found")
	ErrInvalidBoundary    = errors.New("invalid data boundary")
	ErrInvalidAccessLevel = errors.New("invalid access level")
)

// AccessLevel classifies a resource's visibility inside its organization.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessPrivate    AccessLevel = "private"
	AccessRestricted AccessLevel = "restricted"
)

// Valid reports whether l is a known access level.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessPublic, AccessPrivate, AccessRestricted:
		return true
	}
	return false
}

// DataBoundary maps a resource to its owning organization.
type DataBoundary struct {
	OrganizationID string      `json:"organization_id"`
	ResourceType   string      `json:"resource_type"`
	ResourceID     string      `json:"resource_id"`
	AccessLevel    AccessLevel `json:"access_level"`
	CreatedAt      time.Time   `json:"created_at"`
}

// New builds a validated boundary. An empty level defaults to private.
func New(organizationID, resourceType, resourceID string, level AccessLevel) (*DataBoundary, error) {
	if level == "" {
		level = AccessPrivate
	}
	b := &DataBoundary{
		OrganizationID: organizationID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		AccessLevel:    level,
		CreatedAt:      time.Now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks that every key field is present.
func (b *DataBoundary) Validate() error {
	if b.OrganizationID == "" || b.ResourceType == "" || b.ResourceID == "" {
		return fmt.Errorf("%w: organization, resource type and resource id are required", ErrInvalidBoundary)
	}
	if !b.AccessLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccessLevel, b.AccessLevel)
	}
	return nil
}

// Key returns the unique index key of the boundary.
func (b *DataBoundary) Key() string {
	return Key(b.OrganizationID, b.ResourceType, b.ResourceID)
}

// Key joins a boundary triple into a single index key.
func Key(organizationID, resourceType, resourceID string) string {
	return organizationID + "|" + resourceType + "|" + resourceID
}

// Repository defines the interface for boundary persistence
type Repository interface {
	// Upsert creates the boundary or updates the access level of an existing triple
	Upsert(ctx context.Context, b *DataBoundary) error

	// Get retrieves the boundary for a triple
	Get(ctx context.Context, organizationID, resourceType, resourceID string) (*DataBoundary, error)

	// ListByOrganization retrieves boundaries of one organization, optionally filtered by type
	ListByOrganization(ctx context.Context, organizationID, resourceType string) ([]*DataBoundary, error)
}
