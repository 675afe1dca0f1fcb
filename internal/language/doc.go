// Package language normalizes user supplied language identifiers to the
// two-letter codes the recognizer accepts and renders display names.
package language
