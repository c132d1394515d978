// Package logger wraps zap for the notifier binaries.
//
// It keeps one global sugared logger with a console encoder and lets every
// service carry a scoped logger inside its context (ToContext, FromContext,
// WithName, WithKV). Handlers log through the package-level helpers
// (InfoKV, WarnKV, ErrorKV and friends) so event ids and delivery ids
// follow the message through the pipeline.
package logger
