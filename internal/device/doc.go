// Package device is the boundary between storypack and a mounted storyteller.
//
// Open inspects a mount root, parses its metadata file once and returns an
// Adapter for the detected family. Callers query Capabilities before invoking
// an operation; unsupported operations fail with
// faults.ErrUnsupportedCapability. Find locates mounted storytellers through
// /proc/mounts and Watcher reports hot-plug events from udev.
package device
