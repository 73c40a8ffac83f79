// Package sdlog is the engine's structured-logging entry point: a
// package-level *logrus.Logger, fielded the way corset's pkg/util and
// pkg/cmd packages do (a shared "log" import, Debugf/Warnf/Errorf calls
// with contextual fields attached via WithField/WithFields) rather than a
// bespoke logging abstraction.
package sdlog

import (
	log "github.com/sirupsen/logrus"
)

// L is the engine's shared logger. cmd/sdengine configures its level and
// formatter at startup; library packages just call the package functions
// below.
var L = log.StandardLogger()

// Model returns a logger scoped to a model's compile/run, the way a
// per-step or per-variable log line elsewhere in the engine is tagged.
func Model(modelName string) *log.Entry {
	return L.WithField("model", modelName)
}

// Step returns a logger scoped to one simulated step, for run_to/run_to_end
// tracing.
func Step(modelName string, t float64) *log.Entry {
	return L.WithFields(log.Fields{"model": modelName, "t": t})
}

// Compile logs a completed compile at Info, with variable-count and
// slab-size fields the way cmd/sdengine's "compile" subcommand reports
// results.
func Compile(modelName string, varCount, slabSize int) {
	L.WithFields(log.Fields{
		"model":    modelName,
		"vars":     varCount,
		"slabSize": slabSize,
	}).Info("compiled model")
}

// Warn logs a tolerated condition (e.g. a unit warning carried through a
// patch) without aborting the caller.
func Warn(format string, args ...interface{}) {
	L.Warnf(format, args...)
}

// Error logs an aborted operation (a rejected compile, a runtime step
// failure) before the caller returns it to its own caller as an error.
func Error(format string, args ...interface{}) {
	L.Errorf(format, args...)
}
