// Package mapper converts query coordinates to H3 cells.
package mapper

type Interface interface {
	CellForPoint(lat, lng float64, res int) (string, error)
	ToParent(cell string, parentRes int) (string, error)
}
