package ports

import "github.com/vbfox/framelink/pkg/log"

// Logger is the structured logging abstraction used across the engine.
type Logger = log.Logger

// Field is a key-value pair for structured logging.
type Field = log.Field
