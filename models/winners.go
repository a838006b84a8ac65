package models

// Placement is a podium position.
type Placement int

const (
	PlacementFirst Placement = iota + 1
	PlacementSecond
	PlacementThird
)

// Placements lists podium positions in award order.
var Placements = []Placement{PlacementFirst, PlacementSecond, PlacementThird}

// Label is the human form used in ledger titles ("1st Prize - ...").
func (p Placement) Label() string {
	switch p {
	case PlacementFirst:
		return "1st"
	case PlacementSecond:
		return "2nd"
	case PlacementThird:
		return "3rd"
	}
	return "unknown"
}

// Column is the events table column holding this placement.
func (p Placement) Column() string {
	switch p {
	case PlacementFirst:
		return "first_place_user_id"
	case PlacementSecond:
		return "second_place_user_id"
	case PlacementThird:
		return "third_place_user_id"
	}
	return ""
}

// Winners holds up to three participant references.
type Winners struct {
	First  *string `json:"first,omitempty"`
	Second *string `json:"second,omitempty"`
	Third  *string `json:"third,omitempty"`
}

// Get returns the user holding p, if any.
func (w Winners) Get(p Placement) (string, bool) {
	var v *string
	switch p {
	case PlacementFirst:
		v = w.First
	case PlacementSecond:
		v = w.Second
	case PlacementThird:
		v = w.Third
	}
	if v == nil {
		return "", false
	}
	return *v, true
}

func (w *Winners) Set(p Placement, userID string) {
	id := userID
	switch p {
	case PlacementFirst:
		w.First = &id
	case PlacementSecond:
		w.Second = &id
	case PlacementThird:
		w.Third = &id
	}
}

// Count returns how many placements are populated.
func (w Winners) Count() int {
	n := 0
	for _, p := range Placements {
		if _, ok := w.Get(p); ok {
			n++
		}
	}
	return n
}
