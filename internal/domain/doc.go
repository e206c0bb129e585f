// Package domain models USGS earthquake feed data and the timeline cards
// sent to users who registered interest in nearby locations.
//
// # Data Source
//
// Earthquakes come from the USGS real-time GeoJSON summary feeds, e.g.
// https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson.
// The feed is regenerated every minute and lists every event of the past
// hour, so consecutive fetches overlap heavily. [SelectNew] drops events that
// are not strictly newer than the dispatcher watermark.
//
// # Feed Conventions
//
// Coordinates:
//
//	geometry.coordinates = [longitude, latitude, depth_km]
//	Longitude first, as in every GeoJSON document.
//
// Time:
//
//	properties.time is milliseconds since the Unix epoch (UTC).
//
// Magnitude:
//
//	properties.mag is a decimal on the reported magnitude scale (ml, md, mb,
//	mww ...). It is null for a handful of automatic solutions; those parse
//	with NoMagnitude set and render as "unknown".
//
// # Matching
//
// Proximity is a flat Euclidean distance in degrees over (lon, lat). It is
// a known approximation: it overstates east-west distance away from the
// equator and breaks across the anti-meridian. The default radius of half a
// degree keeps the error small for the advisory use case. See [Matches].
//
// # Cards
//
// A single matched earthquake produces one unbundled card. Two or more share
// a bundle id and are followed by one cover card stating the count. Map
// images are best-effort: a failed fetch yields a card without an image.
package domain
