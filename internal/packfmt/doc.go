// Package packfmt recognizes story archives and reads their entries.
//
// Classify decides how an archive must be imported: the fully deciphered
// portable form (".plain.pk"), the legacy partially ciphered form, the
// generic zip carrying a "uuid.bin" marker, or a third-party layout that no
// storyteller accepts. The package also owns the naming rules that map
// archive entry names to on-device names and back.
package packfmt
