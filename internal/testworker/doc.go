// Package testworker is an in-tree ioprocess worker used by tests.
//
// It speaks the same pipe protocol as the real binary and implements the same
// methods against the local filesystem, so the client can be exercised end to
// end without installing ioprocess. Test binaries re-execute themselves as the
// worker: TestMain calls MainIfWorker, and Options points the client at
// os.Executable with EnvVar set.
package testworker
