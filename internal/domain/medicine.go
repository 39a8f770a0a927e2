package domain

import "errors"

// Medicine is an entry in the medicine catalog
type Medicine struct {
	ID         *int64 `json:"id"`
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Form       string `json:"form"`
	Controlled int    `json:"controlled"`
}

// Normalize upper-cases name, dosage and form
func (m *Medicine) Normalize() {
	m.Name = normalizeText(m.Name)
	m.Dosage = normalizeText(m.Dosage)
	m.Form = normalizeText(m.Form)
}

// Validate checks required fields
func (m *Medicine) Validate() error {
	if m.Name == "" {
		return errors.New("medicine name is required")
	}
	if m.Controlled != 0 && m.Controlled != 1 {
		return errors.New("medicine controlled flag must be 0 or 1")
	}
	return nil
}

// IsControlled reports whether the medicine requires a controlled prescription
func (m *Medicine) IsControlled() bool {
	return m.Controlled != 0
}

// Posology is a standard dosing text
type Posology struct {
	ID   *int64 `json:"id"`
	Text string `json:"text"`
}

// Normalize upper-cases the text
func (p *Posology) Normalize() {
	p.Text = normalizeText(p.Text)
}

// Validate checks required fields
func (p *Posology) Validate() error {
	if p.Text == "" {
		return errors.New("posology text is required")
	}
	return nil
}
