// Package ports defines the interfaces that connect the protocol engine to
// the outside world.
//
// Ports are the boundary between the engine core and infrastructure. They
// state what the engine needs from external systems without fixing how those
// needs are met.
//
// # Port interfaces
//
//   - [Transport]: the raw duplex byte stream the codec reads and writes
//
// Logging uses the Logger interface from pkg/log directly; it is re-exported
// here so the internal packages share one import site.
//
// The codec and link packages depend only on these interfaces. Adapters under
// internal/adapters provide concrete implementations (net.Conn, in-memory
// pipe), which keeps the engine testable without opening a real line.
package ports
