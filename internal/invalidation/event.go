// Package invalidation defines the place change events that evict cached details.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces that a provider's place changed or disappeared.
type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Provider string    `json:"provider"`
	PlaceID  string    `json:"place_id"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
	// Location, when known, lets the consumer cool the place's cell.
	Location *Point `json:"location,omitempty"`
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be update|delete")
	}
	if strings.TrimSpace(e.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(e.PlaceID) == "" {
		return fmt.Errorf("place_id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if p := e.Location; p != nil {
		if !(p.Lat >= -90 && p.Lat <= 90) || !(p.Lng >= -180 && p.Lng <= 180) {
			return fmt.Errorf("location out of range")
		}
	}
	return nil
}

// DedupeKey identifies the place an event targets.
func (e Event) DedupeKey() string {
	return strings.ToLower(strings.TrimSpace(e.Provider)) + "|" + strings.TrimSpace(e.PlaceID)
}
