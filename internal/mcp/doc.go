// Package mcp exposes ioprocess filesystem operations as Model Context Protocol tools.
//
// A Server keeps its own thread-safe tool registry so tools can be listed and
// invoked directly, and builds an official MCP SDK server from that registry
// when it has to be served over a transport such as stdio.
//
// Read-mostly tools are always registered. Mutating tools are registered only
// when explicitly requested.
package mcp
