// Package transfer moves content between archives and devices.
//
// Importer turns an archive into an on-device content directory and commits
// its identifier to the content index only after every file and the
// authorization marker were written. Exporter turns an installed content back
// into a portable archive. Both poll their context between files; a cancelled
// or failed import leaves neither a partial directory nor an index change.
package transfer
