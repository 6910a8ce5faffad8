// Package log provides the leveled logging interface used by the retrieval
// core.
//
// The stores and the clustering service report side effects through it:
// relationships dropped below the confidence threshold, clustering progress,
// truncated graph expansions. Two implementations ship with the package, a
// DefaultLogger over Go's standard log package and a GologLogger wrapping
// github.com/kataras/golog; anything implementing Logger can be plugged in
// via SetDefaultLogger or per-component options.
//
// # Log Levels
//
//   - LogLevelDebug: detailed debugging information
//   - LogLevelInfo: general informational messages
//   - LogLevelWarn: potentially problematic situations
//   - LogLevelError: failures that need attention
//   - LogLevelNone: disables all logging output
//
// # Example
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("workspace %s: clustering finished, %d communities", ws, n)
//
//	// Or with golog:
//	glogger := golog.New()
//	log.SetDefaultLogger(log.NewGologLogger(glogger))
//
// The DefaultLogger is safe for concurrent use; the underlying standard
// library logger handles synchronization internally.
package log
