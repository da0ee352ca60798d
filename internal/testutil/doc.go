// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (sessions,
// events, tool/function parts), a shared SessionStore conformance suite and
// fault-injecting store wrappers. It is not intended for production usage.
package testutil
