package selection

import (
	"goflare.io/stride/pace"
	"goflare.io/stride/palette"
)

// Athlete is a search result returned by the lookup service.
type Athlete struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Nationality string `json:"nationality,omitempty"`
	Sex         string `json:"sexe,omitempty"`
	LicenseID   string `json:"license_id,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"`
	Club        string `json:"club,omitempty"`
	Category    string `json:"category,omitempty"`
	// URL is the athlete's profile page on the federation site.
	URL string `json:"url,omitempty"`
}

// Entity is a selected athlete together with its display state.
type Entity struct {
	Athlete
	Color     palette.Color `json:"color"`
	IsLoading bool          `json:"isLoading"`
	Visible   bool          `json:"visible"`
	Records   pace.Records  `json:"records"`
}

func (e Entity) clone() Entity {
	if e.Records != nil {
		records := make(pace.Records, len(e.Records))
		for d, t := range e.Records {
			records[d] = t
		}
		e.Records = records
	}
	return e
}
