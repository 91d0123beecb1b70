// Package cipher implements the header obfuscation applied to on-device
// story files.
//
// Two schemes exist. Legacy devices use XXTEA with a round schedule derived
// from the window size and a symmetric 16-byte key. Later devices use AES-CBC
// with a key and iv. Only a window of each buffer is transformed (by
// convention the first HeaderWindow bytes); everything outside the window is
// copied through untouched. Transform never modifies its input.
//
// Role and KeySet encode which key a given on-device file is ciphered with.
package cipher
