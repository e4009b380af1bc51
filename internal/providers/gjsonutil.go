package providers

import (
	"math"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

// Helpers below map gjson values onto canonical nullable fields. Any value of
// the wrong JSON type reads as absent.

func OptString(r gjson.Result) *string {
	if r.Type != gjson.String || r.Str == "" {
		return nil
	}
	s := r.Str
	return &s
}

func Str(r gjson.Result) string {
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

func OptFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Num
	return &v
}

func OptInt(r gjson.Result) *int {
	if r.Type != gjson.Number || r.Num != math.Trunc(r.Num) {
		return nil
	}
	v := int(r.Num)
	return &v
}

// Strings collects the string elements of an array, skipping others.
func Strings(r gjson.Result) []string {
	out := []string{}
	if !r.IsArray() {
		return out
	}
	for _, v := range r.Array() {
		if v.Type == gjson.String && v.Str != "" {
			out = append(out, v.Str)
		}
	}
	return out
}

// Coord reads a finite number, reporting false for anything else.
func Coord(r gjson.Result) (float64, bool) {
	if r.Type != gjson.Number || math.IsNaN(r.Num) || math.IsInf(r.Num, 0) {
		return 0, false
	}
	return r.Num, true
}

// Objects returns the object elements of an array.
func Objects(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	var out []gjson.Result
	for _, v := range r.Array() {
		if v.IsObject() {
			out = append(out, v)
		}
	}
	return out
}

// Finish fills list fields and returns p for chaining in normalizers.
func Finish(p model.Place) model.Place {
	p.Fill()
	return p
}
