// Package entity provides embeddable bases for audited entities. Embedded
// structs are flattened by the schema catalog, so their fields become
// columns of the embedding table.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Audit holds who created and last updated a row, and when.
type Audit struct {
	UtcCreatedOn    time.Time
	CreatedByUserId string
	UtcUpdatedOn    time.Time
	UpdatedByUserId string
}

// AuditInfo returns the embedded audit fields.
func (a *Audit) AuditInfo() *Audit { return a }

// Created stamps both the creation and update fields.
func (a *Audit) Created(userID string, now time.Time) {
	a.UtcCreatedOn = now
	a.CreatedByUserId = userID
	a.Updated(userID, now)
}

// Updated stamps the update fields.
func (a *Audit) Updated(userID string, now time.Time) {
	a.UtcUpdatedOn = now
	a.UpdatedByUserId = userID
}

// KeepCreated copies the creation fields of an already stored row.
func (a *Audit) KeepCreated(stored *Audit) {
	a.UtcCreatedOn = stored.UtcCreatedOn
	a.CreatedByUserId = stored.CreatedByUserId
}

// Auditable is implemented by any entity embedding Audit.
type Auditable interface {
	AuditInfo() *Audit
}

// IDAssigner is implemented by entities that generate their own key.
type IDAssigner interface {
	EnsureID() string
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// StringAudited is an audited entity keyed by a UUID string.
type StringAudited struct {
	Id string `db:",pk"`
	Audit
}

// EnsureID assigns a new UUID when Id is empty and returns the Id.
func (e *StringAudited) EnsureID() string {
	if e.Id == "" {
		e.Id = NewID()
	}
	return e.Id
}

// IdentityAudited is an audited entity keyed by a database-generated int.
type IdentityAudited struct {
	Id int `db:",pk,identity"`
	Audit
}

// LongIdentityAudited is an audited entity keyed by a database-generated int64.
type LongIdentityAudited struct {
	Id int64 `db:",pk,identity"`
	Audit
}
