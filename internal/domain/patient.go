package domain

import "errors"

// Patient represents a registered patient
type Patient struct {
	ID         *int64 `json:"id"`
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	BirthDate  string `json:"birth_date"`
}

// Normalize upper-cases the name and national id
func (p *Patient) Normalize() {
	p.Name = normalizeText(p.Name)
	p.NationalID = normalizeText(p.NationalID)
}

// Validate checks required fields
func (p *Patient) Validate() error {
	if p.Name == "" {
		return errors.New("patient name is required")
	}
	if p.NationalID == "" {
		return errors.New("patient national id is required")
	}
	if p.BirthDate == "" {
		return errors.New("patient birth date is required")
	}
	return nil
}
