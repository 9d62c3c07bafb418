package membership

import (
	"time"
)

type ConnectionType string

const (
	ConnectionFamily         ConnectionType = "family"
	ConnectionTeacherStudent ConnectionType = "teacher_student"
	ConnectionTeacherParent  ConnectionType = "teacher_parent"
)

type FamilyMember struct {
	FamilyID  string    `json:"family_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Enrollment struct {
	ClassroomID string    `json:"classroom_id"`
	StudentID   string    `json:"student_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Connection links two users symmetrically. UserA < UserB always holds.
type Connection struct {
	UserA     string         `json:"user_a"`
	UserB     string         `json:"user_b"`
	Type      ConnectionType `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

// Key identifies the connection regardless of the order its users were given in.
func (c Connection) Key() string {
	return c.UserA + ":" + c.UserB + ":" + string(c.Type)
}

// NewConnection builds the canonical connection between a and b.
func NewConnection(a, b string, ct ConnectionType) Connection {
	a, b = CanonicalPair(a, b)
	return Connection{UserA: a, UserB: b, Type: ct}
}

// CanonicalPair orders two user ids so that a pair has a single stored form.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Outcome lists what an approval materialized. Entries already present before the approval are included.
type Outcome struct {
	FamilyMember   *FamilyMember `json:"family_member,omitempty"`
	Enrollment     *Enrollment   `json:"enrollment,omitempty"`
	Connection     *Connection   `json:"connection,omitempty"`
	StudentCreated bool          `json:"student_created,omitempty"`
}

// ConnectionID is the key of the connection created, if any.
func (o Outcome) ConnectionID() string {
	if o.Connection == nil {
		return ""
	}
	return o.Connection.Key()
}
