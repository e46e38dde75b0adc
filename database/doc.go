// Package database is a thin convenience layer over embedded SQLite.
//
// This package manages:
//   - Opening and closing one exclusively owned connection (file or in-memory)
//   - Loading preset in-memory databases from serialized images
//   - Idempotent, all-or-nothing schema migrations tracked in a ledger table
//   - Simple SELECT / INSERT OR REPLACE / DELETE helpers with bound values
//   - Materialising result rows as text cells with typed getters
//
// It is not a query builder. Table and column names are spliced into the
// SQL text as given and must come from the program, never from end users;
// only values are bound as parameters.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "data/app.db", ForeignKeys: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.RunMigrations(ctx, []database.Migration{
//	    database.NewMigration("init", "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"),
//	})
//
//	err = db.Upsert(ctx, "t", database.Data{"id": 1, "name": "a"})
//
//	rows, err := db.SelectWhere(ctx, "t", []string{"name"}, database.Data{"id": 1})
//	name, err := database.Get[string](rows[0], "name")
//
// Migration Strategy:
//
// A migration is identified by its title only. RunMigrations skips every
// title already present in the ledger, so editing the SQL of an applied
// migration has no effect; add a new migration instead. Each call runs in
// a single transaction: either every new migration is applied and recorded,
// or none is.
//
// Errors:
//
// Every error matches one of ErrOpen, ErrPrecondition, ErrExecution or
// ErrDataShape with errors.Is. Nothing is retried.
package database
