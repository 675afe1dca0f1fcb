// Package watch submits media files dropped into the configured watch folder.
//
// A file is submitted once its size and modification time have been stable
// for watch.settle_seconds. Files whose content digest already has a
// completed history record are skipped, so restarting the daemon does not
// re-transcribe the folder.
package watch
