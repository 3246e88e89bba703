package assessment

import (
	"encoding/json"
	"time"
)

// RapidAssessment is one submitted field assessment.
//
// Invariants:
// - Status flows DRAFT -> SUBMITTED -> {VERIFIED | AUTO_VERIFIED | REJECTED}.
// - Terminal assessments are immutable except for audit metadata.
// - AssessorName is a snapshot taken at submission time; the queue search
//   matches against it without joining users.
type RapidAssessment struct {
	ID   string `json:"id" db:"id"`
	Type Type   `json:"type" db:"type"`

	// Date is the assessment date reported by the field worker, which can lag
	// CreatedAt when connectivity forces delayed submission.
	Date time.Time `json:"date" db:"date"`

	EntityID     string `json:"entity_id" db:"entity_id"`
	EntityName   string `json:"entity_name,omitempty" db:"entity_name"`
	AssessorID   string `json:"assessor_id" db:"assessor_id"`
	AssessorName string `json:"assessor_name" db:"assessor_name"`

	Location GPSCapture `json:"location" db:"location"`

	// PhotoRefs are object-storage keys for attached photos/documents.
	PhotoRefs []string `json:"photo_refs,omitempty" db:"photo_refs"`

	// Payload holds exactly one domain section matching Type.
	Payload json.RawMessage `json:"payload" db:"payload"`

	Status   VerificationStatus `json:"verification_status" db:"verification_status"`
	Priority Priority           `json:"priority" db:"priority"`

	// Feedback is set on rejection and surfaced back to the assessor.
	Feedback string `json:"feedback,omitempty" db:"feedback"`

	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	VerifiedBy string     `json:"verified_by,omitempty" db:"verified_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Type string

const (
	TypeFood     Type = "FOOD"
	TypeHealth   Type = "HEALTH"
	TypeWASH     Type = "WASH"
	TypeSecurity Type = "SECURITY"
	TypeShelter  Type = "SHELTER"
)

func ValidType(t Type) bool {
	switch t {
	case TypeFood, TypeHealth, TypeWASH, TypeSecurity, TypeShelter:
		return true
	default:
		return false
	}
}

type VerificationStatus string

const (
	StatusDraft        VerificationStatus = "DRAFT"
	StatusSubmitted    VerificationStatus = "SUBMITTED"
	StatusVerified     VerificationStatus = "VERIFIED"
	StatusAutoVerified VerificationStatus = "AUTO_VERIFIED"
	StatusRejected     VerificationStatus = "REJECTED"
)

func ValidStatus(s VerificationStatus) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusVerified, StatusAutoVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status closes the verification lifecycle.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusAutoVerified, StatusRejected:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns the ordinal of the priority (LOW < MEDIUM < HIGH < CRITICAL),
// -1 for unknown values.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return -1
}

func ValidPriority(p Priority) bool { return p.Rank() >= 0 }

// GPSCapture records where the assessment was taken and how the fix was obtained.
type CaptureMethod string

const (
	CaptureGPS       CaptureMethod = "GPS"
	CaptureMapSelect CaptureMethod = "MAP_SELECT"
	CaptureManual    CaptureMethod = "MANUAL"
)

type GPSCapture struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	// AccuracyMeters is 0 for MANUAL/MAP_SELECT captures.
	AccuracyMeters float64       `json:"accuracy_meters,omitempty" db:"accuracy_meters"`
	CapturedAt     time.Time     `json:"captured_at" db:"captured_at"`
	Method         CaptureMethod `json:"capture_method" db:"capture_method"`
}

func (g GPSCapture) Zero() bool {
	return g.Latitude == 0 && g.Longitude == 0 && g.Method == ""
}
