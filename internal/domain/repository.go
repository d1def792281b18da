package domain

// SessionRepository defines the interface for session history persistence
type SessionRepository interface {
	// Create creates a new session record
	Create(record *SessionRecord) error

	// Update updates an existing session record
	Update(record *SessionRecord) error

	// FindByID finds a session record by ID
	FindByID(id string) (*SessionRecord, error)

	// FindAll finds session records with optional filters
	FindAll(filters map[string]interface{}) ([]*SessionRecord, error)

	// GetStats returns session statistics
	GetStats() (*SessionStats, error)
}

// CookieRepository defines the interface for encrypted cookie persistence
type CookieRepository interface {
	// SaveCookies creates or replaces the record of a domain
	SaveCookies(record *CookieRecord) error

	// FindCookies returns the record of a domain, or nil when none is stored
	FindCookies(domain string) (*CookieRecord, error)

	// DeleteCookies removes the record of a domain
	DeleteCookies(domain string) error

	// AllCookies returns every stored record
	AllCookies() ([]*CookieRecord, error)
}

// SessionStats represents session statistics
type SessionStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Finished  int64 `json:"finished"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}
