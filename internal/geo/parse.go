// Package geo turns human-entered coordinate text into decimal points.
package geo

import (
	"regexp"
	"strconv"
	"strings"
)

// Point is a decimal latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the WGS84 bounds.
// Parse never applies this check.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

const number = `\d+(?:\.\d*)?`

// Formats are tried in this order and the first structural match wins.
var (
	hemisphereRe = regexp.MustCompile(`(?i)(` + number + `)°?([NS])\s*,?\s*(` + number + `)°?([EW])`)
	decimalRe    = regexp.MustCompile(`(-?` + number + `)(?:\s*,\s*|\s+)(-?` + number + `)`)
	labeledRe    = regexp.MustCompile(`(?i)lat:\s*(-?` + number + `)\s*,?\s*lng:\s*(-?` + number + `)`)
)

// Parse extracts a point from free text. Supported shapes:
//
//	33.5731°N, 7.5898°W
//	33.5731, -7.5898
//	lat: 33.5731, lng: -7.5898
//
// The pattern may appear anywhere in s. A false result means the text holds no
// coordinates; it is not an error.
func Parse(s string) (Point, bool) {
	if strings.TrimSpace(s) == "" {
		return Point{}, false
	}
	if m := hemisphereRe.FindStringSubmatch(s); m != nil {
		lat, ok1 := parseFloat(m[1])
		lng, ok2 := parseFloat(m[3])
		if ok1 && ok2 {
			if strings.EqualFold(m[2], "S") {
				lat = -lat
			}
			if strings.EqualFold(m[4], "W") {
				lng = -lng
			}
			return Point{Lat: lat, Lng: lng}, true
		}
	}
	if m := decimalRe.FindStringSubmatch(s); m != nil {
		if p, ok := pair(m[1], m[2]); ok {
			return p, true
		}
	}
	if m := labeledRe.FindStringSubmatch(s); m != nil {
		if p, ok := pair(m[1], m[2]); ok {
			return p, true
		}
	}
	return Point{}, false
}

// Resolve picks the display location of a project: the explicit numeric pair
// when both halves are set, otherwise whatever Parse finds in coordinates.
func Resolve(lat, lng *float64, coordinates string) (Point, bool) {
	if lat != nil && lng != nil {
		return Point{Lat: *lat, Lng: *lng}, true
	}
	return Parse(coordinates)
}

func pair(a, b string) (Point, bool) {
	lat, ok1 := parseFloat(a)
	lng, ok2 := parseFloat(b)
	if !ok1 || !ok2 {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

func parseFloat(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
