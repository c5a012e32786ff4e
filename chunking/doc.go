// Package chunking splits documents into overlapping fixed-size windows.
//
// Windows are measured in runes, so multi-byte text is never cut inside a
// character. With the default window of 750 and overlap of 50 each chunk
// starts 700 runes after the previous one, and the last 50 runes of a chunk
// repeat at the start of the next.
package chunking
