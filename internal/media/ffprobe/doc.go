// Package ffprobe inspects media containers: stream layout, duration and size.
package ffprobe
