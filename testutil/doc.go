// Package testutil provides shared test doubles: a scriptable mock
// backend, device and endpoint for exercising session and registry
// behavior, and an in-memory message transport for exercising the remote
// backend without a broker.
package testutil
