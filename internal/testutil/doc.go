// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing session records and run records
// and when asserting event streams. A shared conformance suite checks every
// core.SessionStore backend the same way. Not intended for production usage.
package testutil
