package wizard

import (
	"regexp"

	"chauffeur/internal/models"
)

var (
	flightNumberPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
	serviceTypes        = []string{
		string(models.ServiceTransfer),
		string(models.ServiceDisposition),
		string(models.ServiceCorporate),
	}
	notDisposition = &Condition{Field: "service_type", NotIn: []string{string(models.ServiceDisposition)}}
)

func tripFields(withTime bool) []Field {
	fields := []Field{
		{Name: "service_type", Kind: KindEnum, Required: true, OneOf: serviceTypes},
		{Name: "departure", Kind: KindText, Required: true, MinLen: 3, MaxLen: 200},
		{Name: "arrival", Kind: KindText, RequiredWhen: notDisposition, MinLen: 3, MaxLen: 200},
		{Name: "date", Kind: KindDate, Required: true, NotPast: true},
	}
	if withTime {
		fields = append(fields, Field{Name: "time", Kind: KindTime, Required: true})
	}
	return fields
}

// BookingForm is the four-step booking wizard. vehicleClasses restricts vehicle_class.
func BookingForm(vehicleClasses []string) *Schema {
	return &Schema{
		Form: models.FormBooking,
		Steps: []Step{
			{Name: models.StepTrip, Fields: tripFields(true)},
			{Name: models.StepDetails, Fields: []Field{
				{Name: "passengers", Kind: KindInt, Required: true, Min: intPtr(1), Max: intPtr(8)},
				{Name: "luggage", Kind: KindInt, Min: intPtr(0), Max: intPtr(10)},
				{Name: "vehicle_class", Kind: KindEnum, Required: true, OneOf: vehicleClasses},
				{Name: "flight_number", Kind: KindText, Upper: true, Pattern: flightNumberPattern},
			}},
			{Name: models.StepContact, Fields: []Field{
				{Name: "first_name", Kind: KindText, Required: true, MaxLen: 100},
				{Name: "last_name", Kind: KindText, Required: true, MaxLen: 100},
				{Name: "email", Kind: KindEmail, Required: true},
				{Name: "phone", Kind: KindPhone, Required: true},
				{Name: "company", Kind: KindText, MaxLen: 150, RequiredWhen: &Condition{
					Field: "service_type", In: []string{string(models.ServiceCorporate)},
				}},
				{Name: "message", Kind: KindText, MaxLen: 1000},
			}},
			{Name: models.StepSummary},
		},
	}
}

// QuoteForm is the shorter two-step quote request.
func QuoteForm() *Schema {
	return &Schema{
		Form: models.FormQuote,
		Steps: []Step{
			{Name: models.StepTrip, Fields: tripFields(false)},
			{Name: models.StepContact, Fields: []Field{
				{Name: "name", Kind: KindText, Required: true, MaxLen: 150},
				{Name: "email", Kind: KindEmail, Required: true},
				{Name: "phone", Kind: KindPhone, Required: true},
				{Name: "message", Kind: KindText, MaxLen: 1000},
			}},
		},
	}
}

// Registry returns the forms served by the site keyed by form kind.
func Registry(vehicleClasses []string) map[string]*Schema {
	return map[string]*Schema{
		models.FormBooking: BookingForm(vehicleClasses),
		models.FormQuote:   QuoteForm(),
	}
}
