package models

import "strings"

// Contact holds the customer's details from the contact step.
type Contact struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company,omitempty"`
}

// FullName prefers the split names of the booking form and falls back to the quote form's single field.
func (c Contact) FullName() string {
	full := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if full != "" {
		return full
	}
	return strings.TrimSpace(c.Name)
}
