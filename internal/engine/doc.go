// Package engine reconciles the local article store with the sync server.
//
// # Overview
//
// A sync pass is one pull, push, merge cycle:
//
//	Idle -> PullingRemote -> PushingPending -> MergingRemote -> Done
//	              |                 |                |
//	              +-----------------+----------------+--> Failed
//
//  1. If the connectivity probe says the device is offline the pass fails
//     at once, without any network call.
//  2. The server's record set is fetched. A failed fetch ends the pass
//     before anything is pushed, since pushes could not be reconciled.
//  3. Pending articles (no server id) are pushed one at a time, with a
//     fixed pacing delay before each attempt. A 503 is retried with
//     exponential backoff up to Config.MaxRetries; 401/403 stops pushing and
//     flags AuthRequired; any other fault leaves that article pending and
//     moves on. A pushed article's local copy is removed (ConfirmReplace)
//     or stamped with its server id (ConfirmInPlace).
//  4. Every server record whose id no local article carries is inserted
//     as a confirmed article. With ConfirmReplace this includes the records
//     just pushed, so they never vanish between passes.
//
// Matching between local and remote is by server id only. Two articles with
// identical text are never merged.
//
// # Usage
//
//	st, err := store.Open(dbPath)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	client, err := remote.New(remote.Config{BaseURL: url})
//	if err != nil {
//	    return err
//	}
//
//	eng, err := engine.New(st, client, netcheck.NewPingProbe(client, 0, 0, nil), nil)
//	if err != nil {
//	    return err
//	}
//
//	res, err := eng.Sync(ctx)
//	if err != nil {
//	    log.Printf("sync failed: %v", err) // articles stay pending
//	}
//
// # Concurrency
//
// An Engine runs at most one pass at a time; a Sync call made while a pass
// is in flight returns ErrSyncInProgress immediately. Articles written to the
// store during a pass are safe, but may only be pushed by the next pass.
package engine
