// Package memory provides an in-memory storage.TokenStore.
//
// It is the default backend: nothing survives a restart, which is usually what
// a throwaway test server wants. All operations hold a single RWMutex, so the
// store is safe for concurrent use.
//
// Example usage:
//
//	store := memory.New()
//	store.SetLogger(logger)
//	store.SetInstrumentation(inst)
//
//	srv, err := server.New(store, creds, auditor, logger, config)
package memory
