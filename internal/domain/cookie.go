package domain

// Cookie is the persisted form of one session cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	// Expires is a unix timestamp, nil for session cookies.
	Expires *int64 `json:"expires"`
}
