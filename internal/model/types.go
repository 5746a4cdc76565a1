package model

import (
	"time"

	"github.com/google/uuid"
)

// Signal lifecycle states. A signal is created active and moves exactly once
// to one of the terminal states.
const (
	SignalActive    = "active"
	SignalResponded = "responded"
	SignalCancelled = "cancelled"
	SignalExpired   = "expired"
)

// Gender values accepted at registration.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// User represents a registered account.
type User struct {
	ID                uuid.UUID
	Name              string
	Gender            string
	Birthday          time.Time
	Email             string
	PasswordHash      string
	Phone             *string
	LastLatitude      *float64
	LastLongitude     *float64
	LocationUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AgeRange buckets the user's age for responder-safe display. The raw
// birthday never leaves the auth surface.
func (u User) AgeRange(now time.Time) string {
	age := now.Year() - u.Birthday.Year()
	if now.YearDay() < u.Birthday.YearDay() {
		age--
	}
	switch {
	case age < 18:
		return "under 18"
	case age < 25:
		return "18-24"
	case age < 35:
		return "25-34"
	case age < 45:
		return "35-44"
	case age < 55:
		return "45-54"
	default:
		return "55+"
	}
}

// Signal is a time-bounded broadcast request for company tied to a location.
type Signal struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Latitude    float64
	Longitude   float64
	Intensity   *int
	Status      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
	CancelledAt *time.Time
}

// Live reports whether the signal should still appear in nearby results,
// i.e. it is active and not past its TTL.
func (s Signal) Live(now time.Time) bool {
	return s.Status == SignalActive && s.ExpiresAt.After(now)
}

// Response records one user's acceptance of another user's signal.
type Response struct {
	ID          uuid.UUID
	SignalID    uuid.UUID
	ResponderID uuid.UUID
	Message     string
	Thanked     bool
	ThankedAt   *time.Time
	CreatedAt   time.Time
}

// SignalView is the responder-safe projection returned by nearby queries.
type SignalView struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	UserName      string    `json:"user_name"`
	UserGender    string    `json:"user_gender"`
	UserAgeRange  string    `json:"user_age_range"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	DistanceKM    float64   `json:"distance_km"`
	Intensity     *int      `json:"intensity,omitempty"`
	ResponseCount int       `json:"response_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ResponseView is a response annotated with responder display fields for the
// signal sender's inbox.
type ResponseView struct {
	ID            uuid.UUID `json:"id"`
	SignalID      uuid.UUID `json:"signal_id"`
	ResponderID   uuid.UUID `json:"responder_id"`
	ResponderName string    `json:"responder_name"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// SignalSummary is the per-signal row in the statistics payload.
type SignalSummary struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	Intensity     *int      `json:"intensity,omitempty"`
	ResponseCount int       `json:"response_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Statistics is the on-demand read model over a user's signal and response
// history. Totals cover every status; buckets use the server's UTC clock.
type Statistics struct {
	TotalSignalsSent       int             `json:"totalSignalsSent"`
	TotalResponsesReceived int             `json:"totalResponsesReceived"`
	TotalAccompanied       int             `json:"totalAccompanied"`
	Signals                []SignalSummary `json:"signals"`
	HourlyActivity         [24]int         `json:"hourlyActivity"`
	DailyActivity          [7]int          `json:"dailyActivity"`
	WeeklyActivity         [5]int          `json:"weeklyActivity"`
	MonthlyActivity        [12]int         `json:"monthlyActivity"`
	AvgIntensity           float64         `json:"avgIntensity"`
	MaxIntensity           int             `json:"maxIntensity"`
	ActiveDays             int             `json:"activeDays"`
	PeopleHelped           int             `json:"peopleHelped"`
	AvgResponseTimeMinutes float64         `json:"avgResponseTimeMinutes"`
}
