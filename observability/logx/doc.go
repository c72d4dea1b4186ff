// Package logx adapts zerolog to the core.Logger interface.
//
// Console output is human readable (short timestamp + short caller); file
// output is JSON and rotated by lumberjack. Warn lines can be rate limited so
// a scheduler that times out every tick cannot flood the sinks.
package logx
