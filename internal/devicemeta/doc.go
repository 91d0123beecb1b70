// Package devicemeta parses storyteller metadata files and derives the key
// material needed to read and write on-device content.
//
// Lunii devices carry a binary ".md" file whose leading version tag selects
// one of two layouts: the legacy layout (tags 1 to 5) embeds an obfuscated
// XXTEA device key, while the later layout (tags 6 and above) only carries the
// serial number and a 32-byte region used to forge per-content keys. The real
// device key of later devices must be supplied through a key file. Flam
// devices carry a ".mdf" file with firmware strings and no key material.
package devicemeta
