// Package model defines the domain types shared across the scheduling core:
// rules, calendar events, match results, durable alarms, and the bounded
// host registration key derivation.
//
// All instants are carried as time.Time in UTC. Adapters normalize on the
// way in; the engine never re-interprets zones except for the all-day
// wall-clock policy, which resolves against the event's own timezone.
package model
