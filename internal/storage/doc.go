// Package storage persists the calendar snapshot.
//
// A snapshot is always written whole: the file driver writes a temp file and
// renames it over the previous one, the sqlite driver rewrites the table in a
// single transaction. Readers never observe a half-written snapshot.
package storage
