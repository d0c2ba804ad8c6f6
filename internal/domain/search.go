package domain

// SearchHit is one archived message matching a search, with the session it
// belongs to.
type SearchHit struct {
	Session Session `json:"session"`
	Message Message `json:"message"`
}
