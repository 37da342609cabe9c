// Package util holds small helpers shared across the server packages.
package util
