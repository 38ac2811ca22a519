// Package gateway defines the language-model boundary used by agents and the
// supervisor. A Gateway turns a prompt plus the tools an agent may use into a
// single decision: a tool call, or free text that ends the investigation.
//
// Provider implementations live in sub-packages (openai, anthropic). The
// Scripted gateway replays canned responses for tests and offline runs.
package gateway
