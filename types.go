package ioprocess

import "github.com/wagiedev/ioprocess-go/internal/protocol"

// Re-export result types from internal package

// StatResult is the worker's stat(2)/lstat(2) answer.
// Times are seconds since the epoch with whole-second precision.
type StatResult = protocol.StatResult

// StatvfsResult is the worker's statvfs(3) answer.
type StatvfsResult = protocol.StatvfsResult

// MemStat is the worker's memory usage in pages.
type MemStat = protocol.MemStat
