package model

// Business is one entry of a Maps result window, in the order Maps listed it.
type Business struct {
	Name        string  `json:"name"`
	PlaceID     string  `json:"place_id"`
	CID         string  `json:"cid"`
	Category    string  `json:"category"`
	Address     string  `json:"address"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Matches reports whether id identifies this business by place id or CID.
func (b Business) Matches(id string) bool {
	if id == "" {
		return false
	}
	return b.PlaceID == id || b.CID == id
}
