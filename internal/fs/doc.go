// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [File]: an open file with read/write/seek/sync capabilities
//   - [FileSystem]: abstracts filesystem operations (open, remove, rename, ...)
//
// Production code uses [Default] (backed by [LocalFS]); tests can wrap it in a
// [FaultyFS] to simulate write, sync, or remove failures on selected files:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("update_", fs.Fault{FailAfterBytes: 1024})
//	// inject ffs into the component under test
//
// The package intentionally does not take context.Context parameters: local
// filesystem calls are not interruptible at the syscall level.
package fs
