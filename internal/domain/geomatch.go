package domain

import "math"

// DefaultMatchRadius is the proximity radius in degrees.
const DefaultMatchRadius = 0.5

// Distance is the flat Euclidean distance between two points in degrees.
func Distance(a, b Point) float64 {
	return math.Hypot(a.Lon-b.Lon, a.Lat-b.Lat)
}

// Matches returns the candidates strictly closer than radius to center,
// in input order.
func Matches(center Point, candidates []InterestPoint, radius float64) []InterestPoint {
	var out []InterestPoint
	for _, c := range candidates {
		if Distance(center, c.Point()) < radius {
			out = append(out, c)
		}
	}
	return out
}

// EventsOfInterest returns the events within radius of any of points, in
// event order and without duplicates by event id.
func EventsOfInterest(events []Earthquake, points []InterestPoint, radius float64) []Earthquake {
	if len(points) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(events))
	var out []Earthquake
	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		if len(Matches(e.Epicenter(), points, radius)) == 0 {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
