// Package task coordinates execution of named build tasks against a build
// tool backend.
//
// # Architecture
//
// A Manager drives one execution per ExecuteTasks call:
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    Hook Chain                                    │
//	│  - May take over the request entirely                           │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │ not handled
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    Init Script Pipeline                          │
//	│  - Ordered contributors emit script fragments                   │
//	│  - Fragments written to one transient init script               │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    Cancellation Registry                         │
//	│  - Handle negotiated from the backend version                   │
//	│  - Registered for the duration of the launch                    │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	                      Connection.Launch
//
// # Cancellation
//
// CancelTask may be called from any goroutine, before, during or after
// the execution it names. It is acknowledged unless a hook reports
// otherwise; a cancel that arrives before registration is a no-op.
//
// # Events
//
// A Listener receives OnStart, then any number of OnOutput, then exactly
// one of OnSuccess, OnFailure or OnCancel, then OnEnd. Requests taken over
// by a hook produce no events from the Manager.
package task
