// Package store keeps the history of capture verifications in a SQLite
// database under the configured state directory.
//
// Writers take an exclusive file lock next to the database so two fluxcheck
// processes never record concurrently; readers may open the store without it.
// Schema changes ship as embedded, ordered migrations.
package store
