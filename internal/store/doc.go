// Package store provides SQLite-backed persistence for workspace data.
//
// A DB is an open storage handle to one workspace's database file. The
// repositories (ProjectRepository, ServerRepository, TokenRepository) each
// create their own table lazily, so a freshly created workspace database
// needs no up-front schema step. The shared migration ledger that upgrades
// the main database between releases lives in the migrate package and runs
// before any repository touches a main-workspace handle.
package store
