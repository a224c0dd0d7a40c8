// Package subprocess launches and reaps ioprocess worker processes.
//
// A worker talks to the engine over two anonymous pipes handed down as
// descriptors 3 (requests in) and 4 (responses out); its stderr is a third
// pipe carrying diagnostic lines. The engine keeps non-blocking ends of all
// three and closes them exactly once when the worker is replaced.
package subprocess
