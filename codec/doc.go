// Package codec maps a closed set of scalar types to and from the byte
// sequences a byte-oriented store keeps.
//
// Byte layouts:
//
//	text     UTF-8 bytes, no length prefix
//	int32    4 bytes, big-endian two's complement
//	int64    8 bytes, big-endian two's complement
//	float64  8 bytes, IEEE-754 big-endian
//	uuid     UTF-8 bytes of the canonical hyphenated form
//	enum     UTF-8 bytes of the variant name
//
// A Type is resolved once into a Codec; unsupported descriptors are rejected
// at that point rather than at first use:
//
//	c, err := codec.For[int64](codec.Int64)
//	b, _ := c.Encode(42)      // 00 00 00 00 00 00 00 2a
//	n, _ := c.Decode(b)       // 42
//
// KeyValue layers a fixed key prefix on top of a key codec and a value codec.
package codec
