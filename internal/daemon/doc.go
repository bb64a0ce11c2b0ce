// Package daemon keeps the local store in step with the sync server while
// quill runs in the foreground.
//
// # Architecture
//
//   - StoreWatcher: fsnotify watch on the directory holding the store
//     database, filtered to the database, its WAL and its journal
//   - Daemon: debounces store changes and runs sync passes on change and
//     on a fixed interval
//
// A `quill add` in another terminal writes the store, the watcher sees the
// write, and once the store has been quiet for DebounceInterval the daemon
// runs a pass. Writes made by a pass itself are recognised by time and do
// not trigger another pass.
//
// # Usage
//
//	d, err := daemon.NewWithConfig(eng, st.Path(), &daemon.Config{
//	    Interval:         time.Minute,
//	    DebounceInterval: 500 * time.Millisecond,
//	    SyncOnStart:      true,
//	    Logger:           logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// Pass failures are logged and never stop the daemon; the next change or
// tick tries again.
package daemon
