// Package supervisor answers a question by classifying it, running the
// matching agent variants concurrently and consolidating their results.
//
// Agents run in their own goroutines and report over a channel. The
// supervisor enforces one deadline for the whole run; agents still running
// at the deadline are cancelled and whatever they report within a short grace
// period is used. Consolidation is commutative: the response does not depend
// on the order in which agents finish.
package supervisor
