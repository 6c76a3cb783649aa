package models

import "time"

type Barber struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	ChatID    int64     `yaml:"chat_id" json:"chat_id"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// ServiceOffering is one bookable service in a barber's catalog.
// Price and Duration must both be positive for the offering to be bookable.
type ServiceOffering struct {
	ID        int64     `yaml:"-" json:"id"`
	BarberID  int64     `yaml:"-" json:"barber_id"`
	ServiceID int64     `yaml:"service_id" json:"service_id"`
	Name      string    `yaml:"name" json:"name"`
	Price     int64     `yaml:"price" json:"price"`
	Duration  int       `yaml:"duration" json:"duration"` // minutes
	Active    bool      `yaml:"active" json:"active"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// Bookable reports whether the offering can appear on a new request.
func (o ServiceOffering) Bookable() bool {
	return o.Active && o.Price > 0 && o.Duration > 0
}
