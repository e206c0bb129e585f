// Command quakectl administers the quake notifier: it registers users,
// their interest points and timeline credentials in Redis, pushes test
// cards, runs one-shot dispatch cycles, and inspects the USGS feed and the
// delivery audit stream.
//
// Configuration comes from the same environment variables as the notifier
// service (REDIS_URL, MAPBOX_TOKEN, MIRROR_BASE_URL, ...).
package main
