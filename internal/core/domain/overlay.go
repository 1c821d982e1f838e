package domain

// Mark is one drawing instruction in bottom-left page coordinates.
type Mark struct {
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Text      string  `json:"text,omitempty"`
	Checkmark bool    `json:"checkmark,omitempty"`
	FontSize  float64 `json:"font_size"`
}

// PageInfo describes the geometry of a stored PDF.
type PageInfo struct {
	PageCount   int       `json:"page_count"`
	PageHeights []float64 `json:"page_heights"`
	PageWidths  []float64 `json:"page_widths"`
}

// Height returns the height of a 1-based page, or zero when out of range.
func (p PageInfo) Height(page int) float64 {
	if page < 1 || page > len(p.PageHeights) {
		return 0
	}
	return p.PageHeights[page-1]
}
