// Package testutil provides a mock clock, fixtures and assertions shared by
// the package tests.
package testutil
