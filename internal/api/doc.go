// Package api exposes the scribe job service over HTTP and provides the Go
// client the CLI uses to talk to a running daemon.
//
// Uploads are streamed to paths.upload_dir and submitted to the workflow
// manager. Job progress can be polled or followed over a websocket that
// closes after the terminal event. Errors are returned as
// {"error": <kind>, "message": <text>} where kind is the stable
// services.ErrorKind of the failure.
package api
