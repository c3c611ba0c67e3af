// Package testdb provides database helpers for tests.
//
// Every call to GetTestDBWithT returns a private in-memory SQLite database
// with all migrations applied, so tests can run in parallel without sharing
// state. The connection is closed by t.Cleanup.
//
//	func TestMyFeature(t *testing.T) {
//	    t.Parallel()
//
//	    db := testdb.GetTestDBWithT(t)
//	    user := testdb.CreateUser(t, db)
//
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sqlx.Tx) {
//	        records := database.NewTaskRecordStore(tx)
//	        // changes are rolled back when fn returns
//	    })
//	}
package testdb
