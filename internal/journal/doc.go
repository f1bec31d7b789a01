// Package journal archives live-update messages to PostgreSQL.
//
// A Journal registers as a connection listener. Messages are queued on an
// unbounded channel so the dispatch path never blocks on the database, then
// written in batches with COPY on size or on a flush interval.
package journal
