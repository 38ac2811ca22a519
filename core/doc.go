// Package core provides the foundational domain types shared by every sleuth
// component. It defines the core abstractions for:
//
//   - Goals and agent variants (what an agent investigates and how)
//   - Tool schemas, calls and results (the contract between agents and tools)
//   - Agent results and the consolidated response returned to callers
//   - The error taxonomy used across cache, tools, gateway and supervisor
//   - Iteration and time budgets that bound one agent run
//
// The package intentionally keeps implementation concerns (caching, provider
// adapters, concrete tools, orchestration) out of scope so that every other
// package can depend on it without cycles.
package core
