// Package security derives security posture reports from engine
// configuration. The report is a plain value: computing it performs no I/O
// and never mutates the engine.
package security
