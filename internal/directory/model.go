package directory

import (
	"time"
)

// Agency is a read-only education agency (school district) row.
type Agency struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	State               string    `json:"state"`
	StateCode           string    `json:"state_code"`
	Type                string    `json:"type"`
	Population          int       `json:"population"`
	Website             string    `json:"website"`
	TotalSchools        int       `json:"total_schools"`
	TotalStudents       int       `json:"total_students"`
	MailingAddress      string    `json:"mailing_address"`
	PhysicalAddress     string    `json:"physical_address"`
	GradeSpan           string    `json:"grade_span"`
	Locale              string    `json:"locale"`
	County              string    `json:"county"`
	Phone               string    `json:"phone"`
	Status              string    `json:"status"`
	StudentTeacherRatio float64   `json:"student_teacher_ratio"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Contact is a read-only person row attached to an agency. Contact records
// are the unit the view quota counts: a page of contacts is only revealed
// once its IDs pass admission control.
type Contact struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Title          string    `json:"title"`
	EmailType      string    `json:"email_type"`
	ContactFormURL string    `json:"contact_form_url"`
	Department     string    `json:"department"`
	AgencyID       string    `json:"agency_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListParams holds offset pagination for directory listings.
type ListParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 10,
	}
}

func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// searchResultLimit bounds contact search responses.
const searchResultLimit = 50
