// Package logger provides structured logging for the engine and its
// stages using zerolog.
//
// Loggers are scoped by attaching fields: the engine tags its run ID,
// pipelines tag their name and filters tag theirs, so every record can be
// traced back to the stage that produced it.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("tsengine").WithPipeline("btc-usd")
//	log.Warn("filter already present", logger.Fields("filter", "scanner"))
package logger
