// Package contentindex keeps the ordered set of content installed on a
// device.
//
// The in-memory Index is backed by a family-specific Store that is rewritten
// in full after every committed mutation: BinaryStore for Lunii devices
// (".pi" and ".pi.hidden", 16 raw bytes per identifier) and TextStore for Flam
// devices (one hyphenated identifier per line). Queries match any fragment of
// an identifier, ignoring case and hyphens.
package contentindex
