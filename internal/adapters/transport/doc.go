// Package transport provides concrete Transport implementations.
//
//   - [Conn]: adapts a blocking stream such as a net.Conn or a serial port
//     handle, with a fill goroutine providing buffered-byte counts and
//     cancellable reads
//   - [Pipe]: an in-memory duplex pair for tests and simulated peers
package transport
