// Package updatelog persists registered collection updates until they are
// applied to the search indexes.
//
// The log is one physical store logically partitioned by collection id: each
// collection has its own strictly increasing sequence counter, assigned at
// registration. Records move through the lifecycle
//
//	Enqueued -> Processing -> Processed | Failed
//
// where only the Enqueued transition is performed by callers (via Register);
// the rest is owned by the log's background applier, which feeds updates to
// the index-management handle and removes payload files afterwards.
//
// [SQLiteStore] is the shipped implementation of the [Store] contract, backed
// by modernc.org/sqlite. Consumers that only need the contract (such as the
// coordinator) should depend on [Store].
package updatelog
