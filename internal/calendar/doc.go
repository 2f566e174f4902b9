// Package calendar is the date-indexed event store.
//
// A Store maps calendar days to ordered lists of short event texts, keeps
// the whole mapping resident and rewrites the full snapshot through a
// storage.Store after every change.
package calendar
