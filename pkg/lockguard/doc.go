// Package lockguard is the library entry point: it opens a workspace,
// wires the configured store, entity directory, audit log and metrics
// into a lock engine and hands back a Client.
//
// # Lifecycle
//
// A Client owns background timers (trust expiry, the timer policy tick
// and the countdown tick) that run until Close. Close forces a final
// flush of timer progress, so an orderly shutdown loses none of it; an
// unclean exit loses at most one flush interval.
//
// A Client holds an exclusive lock on .lockguard/engine.lock until Close,
// so only one engine writes a workspace at a time. Open fails with
// E_STORE_UNAVAILABLE while another Client holds it.
//
// # Usage
//
//	client, err := lockguard.Open(ctx, ".", lockguard.Options{})
//	defer client.Close(ctx)
//
//	_, err = client.CreateLock(ctx, model.LockRequest{
//	    Kind:   model.KindDocument,
//	    ID:     "20240101010101-abcdefg",
//	    Secret: secret,
//	    Policy: model.PolicyTrust,
//	})
//	state := client.ResolveLockState(ctx, docID, model.ResolveOptions{Source: model.SourceTree})
package lockguard
