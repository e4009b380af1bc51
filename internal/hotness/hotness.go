// Package hotness scores how often map areas are queried.
package hotness

// Interface tracks a decaying request score per H3 cell.
type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
}

// CellScore pairs a cell with its current score.
type CellScore struct {
	Cell  string  `json:"cell"`
	Score float64 `json:"score"`
}
