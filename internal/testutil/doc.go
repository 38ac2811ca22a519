// Package testutil contains helpers used across tests to reduce boilerplate
// when building fixture repositories and counting tool invocations. They are
// not intended for production usage.
package testutil
