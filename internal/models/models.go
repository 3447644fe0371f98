package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Service is the closed set of responder services a call can be routed to.
type Service string

const (
	ServiceFire      Service = "Fire Service"
	ServicePolice    Service = "Police Service"
	ServiceAmbulance Service = "Ambulance Service"
)

// Valid reports whether s is one of the three known services.
func (s Service) Valid() bool {
	switch s {
	case ServiceFire, ServicePolice, ServiceAmbulance:
		return true
	}
	return false
}

// Status is a call progress value. The caller-side and responder-side status
// fields each hold one of these and move independently.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Valid reports whether st is one of the three known statuses.
func (st Status) Valid() bool {
	switch st {
	case StatusPending, StatusActive, StatusResolved:
		return true
	}
	return false
}

// UpdatedBy records which responder last changed the personnel-side status.
// Stored as JSONB on the calls row.
type UpdatedBy struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

// Value implements driver.Valuer for JSONB storage.
func (u UpdatedBy) Value() (driver.Value, error) {
	return json.Marshal(u)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (u *UpdatedBy) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("cannot scan updated_by: not a byte slice")
	}
	return json.Unmarshal(b, u)
}

// EmergencyCall is one emergency-assistance request record.
type EmergencyCall struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	FallbackName      *string    `json:"fallback_name,omitempty" db:"fallback_name"`
	FallbackPhone     *string    `json:"fallback_phone,omitempty" db:"fallback_phone"`
	Service           Service    `json:"service" db:"service"`
	Latitude          float64    `json:"latitude" db:"latitude"`
	Longitude         float64    `json:"longitude" db:"longitude"`
	Address           *string    `json:"address,omitempty" db:"address"`
	StatusByUser      Status     `json:"status_by_user" db:"status_by_user"`
	StatusByPersonnel Status     `json:"status_by_personnel" db:"status_by_personnel"`
	LastUpdatedBy     *UpdatedBy `json:"last_updated_by,omitempty" db:"last_updated_by"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// Anonymous reports whether the call has no owning user. Anonymous calls carry
// a fallback name or phone instead.
func (c *EmergencyCall) Anonymous() bool {
	return c.UserID == nil
}

// PersonnelType discriminates the two registration shapes for responders.
type PersonnelType string

const (
	PersonnelTypePolice     PersonnelType = "police"
	PersonnelTypeFireHealth PersonnelType = "fire-health"
)

// PersonnelRole is the secondary role for fire-health personnel.
type PersonnelRole string

const (
	RoleFire   PersonnelRole = "fire"
	RoleHealth PersonnelRole = "health"
)

// Personnel is one authenticated responder. Affiliation is derived from the
// concrete type, never taken from client input.
type Personnel interface {
	PersonnelID() uuid.UUID
	DisplayName() string
	// Affiliation returns the service this responder is authorized to act on.
	Affiliation() Service
	// RoleLabel is the short role name recorded on status updates and used in
	// authorization failure messages.
	RoleLabel() string
}

// PoliceOfficer is a responder registered under the police service.
type PoliceOfficer struct {
	ID       uuid.UUID
	Name     string
	SONumber string
}

func (p PoliceOfficer) PersonnelID() uuid.UUID { return p.ID }
func (p PoliceOfficer) DisplayName() string    { return p.Name }
func (p PoliceOfficer) Affiliation() Service   { return ServicePolice }
func (p PoliceOfficer) RoleLabel() string      { return string(PersonnelTypePolice) }

// FireHealthPersonnel is a responder registered under the joint fire/health
// service; the role decides the effective affiliation.
type FireHealthPersonnel struct {
	ID   uuid.UUID
	Name string
	Role PersonnelRole
}

func (p FireHealthPersonnel) PersonnelID() uuid.UUID { return p.ID }
func (p FireHealthPersonnel) DisplayName() string    { return p.Name }

func (p FireHealthPersonnel) Affiliation() Service {
	if p.Role == RoleHealth {
		return ServiceAmbulance
	}
	return ServiceFire
}

func (p FireHealthPersonnel) RoleLabel() string { return string(p.Role) }

// PersonnelRecord is a personnel directory row.
type PersonnelRecord struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Email     string         `json:"email" db:"email"`
	Type      PersonnelType  `json:"type" db:"type"`
	Role      *PersonnelRole `json:"role,omitempty" db:"role"`
	SONumber  *string        `json:"so_number,omitempty" db:"so_number"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Personnel reconstructs the typed responder from the stored row.
func (r *PersonnelRecord) Personnel() (Personnel, error) {
	switch r.Type {
	case PersonnelTypePolice:
		so := ""
		if r.SONumber != nil {
			so = *r.SONumber
		}
		return PoliceOfficer{ID: r.ID, Name: r.Name, SONumber: so}, nil
	case PersonnelTypeFireHealth:
		if r.Role == nil {
			return nil, errors.Errorf("personnel %s has type fire-health but no role", r.ID)
		}
		switch *r.Role {
		case RoleFire, RoleHealth:
			return FireHealthPersonnel{ID: r.ID, Name: r.Name, Role: *r.Role}, nil
		}
		return nil, errors.Errorf("personnel %s has unknown role %q", r.ID, *r.Role)
	}
	return nil, errors.Errorf("personnel %s has unknown type %q", r.ID, r.Type)
}

// EventType identifies one kind of relay fan-out message.
type EventType string

const (
	EventNewEmergencyCall EventType = "new-emergency-call"
	EventCallUpdated      EventType = "emergency-call-updated"
	EventCallUserUpdate   EventType = "emergency-call-user-update"
	EventYourCallUpdated  EventType = "your-emergency-call-updated"
)

// Event is one transient fan-out message. Events are delivered best-effort to
// currently connected sessions and are never persisted or retried.
type Event struct {
	Type      EventType      `json:"type"`
	Call      *EmergencyCall `json:"call"`
	Timestamp time.Time      `json:"timestamp"`
}

// CreateCallRequest is the payload for POST /calls.
type CreateCallRequest struct {
	Service   Service  `json:"service"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
}

// UpdateUserStatusRequest is the payload for the caller-side status update.
// Phone is only consulted for anonymous calls.
type UpdateUserStatusRequest struct {
	Status Status `json:"status"`
	Phone  string `json:"phone"`
}

// UpdatePersonnelStatusRequest is the payload for the responder-side status update.
type UpdatePersonnelStatusRequest struct {
	Status Status `json:"status"`
}

// CreatePersonnelRequest is the payload for registering a responder in the directory.
type CreatePersonnelRequest struct {
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Type     PersonnelType `json:"type"`
	Role     PersonnelRole `json:"role"`
	SONumber string        `json:"so_number"`
}
