// Package toolset provides the built-in investigation tools: repository file
// scanning, reading, regexp search, external web search and a focused
// sub-reasoning call. Register wires them into a tool.Registry.
//
// File tools resolve paths against the repository carried by the
// tool.ExecutionContext and refuse to leave it.
package toolset
