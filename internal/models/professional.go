// internal/models/professional.go
package models

// Registration and availability statuses. Only APPROVED + AVAILABLE
// professionals are matchable.
const (
	RegistrationApproved = "APPROVED"
	RegistrationPending  = "PENDING"
	RegistrationRejected = "REJECTED"

	AvailabilityAvailable   = "AVAILABLE"
	AvailabilityUnavailable = "UNAVAILABLE"
)

// Availability start windows.
const (
	StartImmediate = "IMMEDIATE"
	StartIn15Days  = "IN_15_DAYS"
	StartIn30Days  = "IN_30_DAYS"
	StartIn60Days  = "IN_60_DAYS"
)

// ProfessionalProfile is a dentist or physician registered on the platform.
type ProfessionalProfile struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	ProfessionalType     string   `json:"professionalType"`
	PrimarySpecialty     string   `json:"primarySpecialty"`
	YearsSinceGraduation int      `json:"yearsSinceGraduation"`
	YearsInSpecialty     int      `json:"yearsInSpecialty"`
	ServiceCities        []string `json:"serviceCities"` // "city - state" entries
	AvailabilityStart    string   `json:"availabilityStart"`
	WeekdayAvailability  []string `json:"weekdayAvailability"` // may include FULL
	CompensationTypes    []string `json:"compensationTypes"`
	AverageRating        float64  `json:"averageRating"`
	RatingCount          int      `json:"ratingCount"`
	AcceptsFreelance     bool     `json:"acceptsFreelance"`
	RegistrationStatus   string   `json:"registrationStatus"`
	AvailabilityStatus   string   `json:"availabilityStatus"`
	Phone                string   `json:"phone,omitempty"`
	Email                string   `json:"email,omitempty"`
}

// Matchable reports whether the profile may appear in match results.
func (p *ProfessionalProfile) Matchable() bool {
	return p.RegistrationStatus == RegistrationApproved &&
		p.AvailabilityStatus == AvailabilityAvailable
}
