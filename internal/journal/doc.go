// Package journal keeps an optional SQLite record of every SMS relay outcome.
//
// The bridge writes one Entry per inbound publish, outbound send or discard.
// Entries are never read back by the relay; they exist for operators to
// answer "did that SMS go out" after the fact. Old entries are removed by
// RunRetention.
package journal
