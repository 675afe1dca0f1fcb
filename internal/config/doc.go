// Package config loads, normalizes, and validates scribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HF_TOKEN and SCRIBE_NTFY_TOPIC. Allow-lists for models, languages, and media
// extensions live here so the API, CLI, and job runner reject the same
// inputs.
package config
