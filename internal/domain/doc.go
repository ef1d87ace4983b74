// Package domain contains the core value types of the framelink protocol.
//
// This is the innermost layer: it has no dependencies on transports, logging,
// or the processing loop, and contains only pure data and functions.
//
// # Entities
//
//   - [Frame]: one protocol unit (control marker or data frame with checksum)
//   - [Kind]: the four-entry header table (Data, Ack, Nak, Cancel)
//   - [Checksum]: the XOR checksum over length and payload bytes
//
// # Wire format
//
// Ack, Nak and Cancel are single marker bytes. A data frame is the start
// marker, a length byte, length-many payload bytes, and one checksum byte.
// The marker byte values are documented on the Marker constants.
package domain
