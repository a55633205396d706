package model

// AvailabilityWindow is a recurring weekly range on DayOfWeek (0 = Monday)
// tiled into SessionDuration-minute sessions.
type AvailabilityWindow struct {
	DayOfWeek       int
	StartMinute     int
	EndMinute       int
	SessionDuration int
}

const DefaultSessionDuration = 30

type Provider struct {
	ID              string
	UserID          string
	ProviderName    string
	BusinessName    string
	Bio             string
	ProviderAddress string
	IsActive        bool
	Services        []Service
}

type Service struct {
	ID          string
	ProviderID  string
	Name        string
	Description string
	Price       float64
}
