// Package spaced places one event on an exponentially thinning run of dates.
//
// Starting from a day and a gap of one day, each step records the event,
// advances by the whole-day part of the gap and multiplies the gap by the
// growth factor, until the date passes the horizon (30 years by default).
package spaced
