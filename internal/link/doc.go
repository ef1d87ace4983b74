// Package link implements the half-duplex protocol orchestrator.
//
// A [Link] owns one connection: it admits one operation at a time through a
// mutual-exclusion gate, drives the write → handshake → response →
// acknowledgment sequence on the wire, and fans unsolicited inbound frames
// out to subscribers.
//
// # Handshake
//
// For a fire-and-forget Send, the first inbound frame resolves the
// operation. For a Query, a leading Ack is only the link-level
// acknowledgment of the outbound write and the following frame is the
// application answer; a first frame that is not an Ack is already the
// answer. Received data frames are checksum-gated: valid ones are answered
// with Ack, corrupt ones with Nak and a wait for retransmission.
//
// # Concurrency
//
// The frame pump goroutine owns transport reads, the processing loop owns
// transport writes, and callers interact only through the admission channel
// and per-operation outcome slots. No mutex guards the transport. Operation
// and shutdown cancellation are separate context signals combined at each
// suspension point; only shutdown (or a transport fault) terminates the
// loop.
package link
