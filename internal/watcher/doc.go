// Package watcher keeps the session store in step with the snapshot
// directory.
//
// Snapshot files live in a temporary directory that the user, the OS or
// "droiddb sessions rm" may clean out at any time. The Watcher listens for
// removals and renames with fsnotify and deletes the session of any base
// snapshot file that disappears, together with its orphaned sidecars. A
// periodic sweep catches changes made while no watcher was running.
//
// Example usage:
//
//	w, err := watcher.New(st, snapshotDir, logger)
//	if err != nil {
//		return err
//	}
//	if err := w.Start(); err != nil {
//		return err
//	}
//	defer w.Stop()
package watcher
