package model

// Enrollment and ticket state is owned by the registration and payment
// subsystems. This service reads them to decide booking eligibility and
// never writes them.

type Enrollment struct {
	ID     string `json:"id" bson:"_id"`
	UserID string `json:"user_id" bson:"user_id"`
	Name   string `json:"name" bson:"name"`
}

const TicketStatusPaid = "PAID"

type TicketType struct {
	IsRemote      bool `json:"is_remote" bson:"is_remote"`
	IncludesHotel bool `json:"includes_hotel" bson:"includes_hotel"`
}

type Ticket struct {
	ID           string     `json:"id" bson:"_id"`
	EnrollmentID string     `json:"enrollment_id" bson:"enrollment_id"`
	Status       string     `json:"status" bson:"status"`
	TicketType   TicketType `json:"ticket_type" bson:"ticket_type"`
}

// QualifiesForBooking reports whether the ticket entitles its holder to a
// hotel booking: paid, in person, hotel included.
func (t *Ticket) QualifiesForBooking() bool {
	return t.Status == TicketStatusPaid &&
		!t.TicketType.IsRemote &&
		t.TicketType.IncludesHotel
}
