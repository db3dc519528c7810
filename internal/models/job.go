// internal/models/job.go
package models

import "time"

// Professional types served by the platform.
const (
	ProfessionalTypeDentist   = "DENTIST"
	ProfessionalTypePhysician = "PHYSICIAN"
)

// Job posting statuses.
const (
	JobStatusOpen      = "OPEN"
	JobStatusFilled    = "FILLED"
	JobStatusCancelled = "CANCELLED"
)

// Schedule periods. A job either lists explicit weekdays or spans the full
// week/month.
const (
	SchedulePeriodWeekdays  = "WEEKDAYS"
	SchedulePeriodFullWeek  = "FULL_WEEK"
	SchedulePeriodFullMonth = "FULL_MONTH"
)

// Weekday labels as used across postings and availability sets.
// WeekdayFull marks unrestricted availability on the professional side.
const (
	WeekdaySeg  = "SEG"
	WeekdayTer  = "TER"
	WeekdayQua  = "QUA"
	WeekdayQui  = "QUI"
	WeekdaySex  = "SEX"
	WeekdaySab  = "SAB"
	WeekdayDom  = "DOM"
	WeekdayFull = "FULL"
)

// Compensation types.
const (
	CompensationFixed      = "FIXED"
	CompensationPercentage = "PERCENTAGE"
	CompensationDaily      = "DAILY"
)

// JobPosting is a vacancy created by a clinic unit. Postings are never
// physically deleted; status transitions are the only destruction path.
type JobPosting struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	ProfessionalType   string    `json:"professionalType"`
	Specialties        []string  `json:"specialties"`
	RequiredExperience int       `json:"requiredExperienceYears"`
	SchedulePeriod     string    `json:"schedulePeriod"`
	Weekdays           []string  `json:"weekdays,omitempty"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	CompensationType   string    `json:"compensationType"`
	CompensationAmount float64   `json:"compensationAmount"`
	ClinicID           string    `json:"clinicId"`
	Status             string    `json:"status"`
	PublishedAt        time.Time `json:"publishedAt"`
	ExpiresAt          time.Time `json:"expiresAt"` // PublishedAt + 30 days
}
