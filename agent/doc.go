// Package agent implements the bounded Reason→Act→Observe loop that a single
// investigator runs against one goal.
//
// Each iteration the agent asks the gateway for the next step, dispatches the
// chosen tool through the registry and records the observation. The package
// focuses on four concerns:
//
//  1. The loop itself (Agent.Run) and its budget: iterations, per-step
//     deadlines and a total deadline
//  2. Variants (code, docs, web) with their own instructions and tool policy
//  3. A deterministic fallback Policy used whenever the gateway cannot help
//  4. Confidence scoring from the termination reason and gathered evidence
//
// Execution Model:
//   - Run never panics and always returns exactly one core.AgentResult
//   - Recoverable errors (tool failures, malformed completions) become observations
//   - Cancellation is checked at the top of every iteration
//
// Agents hold no mutable state between runs and can be shared across goroutines;
// all per-run data lives in State.
package agent
