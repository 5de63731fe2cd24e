// Package serialization provides the wire format for flattening a typed
// buffer to a length-prefixed element sequence and reconstructing it.
//
//	Format Structure:
//	  [4 bytes: Magic "DBUF"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: DataType code (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Element count (int32 LE)]
//	  [Element data: count × native-width elements, little-endian]
//
// Elements are encoded in their native width, never re-converted, so a
// round trip through Write and Read reproduces the content exactly.
// Flag bit 0 distinguishes a populated buffer from one that was never
// written: an unpopulated buffer is encoded with the flag clear and a
// zero count, and importing such an image leaves the target unpopulated.
//
// All multi-byte fields are little-endian regardless of platform, so the
// format is safe to move across machines.
package serialization
