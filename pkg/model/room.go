package model

// Room belongs to a hotel and caps how many bookings may reference it at
// once. The rooms collection is owned by the hotel catalog subsystem; this
// service only reads it.
type Room struct {
	ID       string `json:"id" bson:"_id"`
	HotelID  string `json:"hotel_id" bson:"hotel_id"`
	Name     string `json:"name" bson:"name"`
	Capacity int    `json:"capacity" bson:"capacity"`
}
