package paymob

import "enrollment-service/internal/models"

// Placeholders sent when the profile lacks a billing field.
// The gateway requires every field to be present.
const (
	placeholder    = "N/A"
	defaultEmail   = "email@example.com"
	defaultPhone   = "+201000000000"
	defaultCity    = "Cairo"
	defaultCountry = "EGYPT"
	defaultPostal  = "00000"
)

type billingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	Apartment   string `json:"apartment"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
}

func billingFor(user *models.User) billingData {
	b := billingData{
		FirstName:   placeholder,
		LastName:    placeholder,
		Email:       defaultEmail,
		PhoneNumber: defaultPhone,
		Street:      placeholder,
		Building:    placeholder,
		Floor:       placeholder,
		Apartment:   placeholder,
		City:        defaultCity,
		State:       defaultCity,
		Country:     defaultCountry,
		PostalCode:  defaultPostal,
	}
	if user == nil {
		return b
	}

	if user.FirstName != "" {
		b.FirstName = user.FirstName
	}
	if user.LastName != "" {
		b.LastName = user.LastName
	}
	if user.Email != "" {
		b.Email = user.Email
	}
	if user.PhoneNumber != "" {
		b.PhoneNumber = user.PhoneNumber
	}
	return b
}
