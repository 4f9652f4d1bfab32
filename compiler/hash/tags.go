package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the program hashing format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed content hashes.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Cell tags. Each tag identifies the kind of one serialized cell.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	TagOp     byte = 0x01
	TagImm    byte = 0x02
	TagBranch byte = 0x03

	// Symbol operands
	TagIntConst    byte = 0x10
	TagStringConst byte = 0x11
	TagGlobalRef   byte = 0x12
	TagArgumentRef byte = 0x13
	TagLocalRef    byte = 0x14 // numbered by first use
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagOp, TagImm, TagBranch,
	TagIntConst, TagStringConst, TagGlobalRef, TagArgumentRef, TagLocalRef,
}
