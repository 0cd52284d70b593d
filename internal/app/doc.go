// Package app wires configuration, the builder registry, the handler
// modules and the execution engine into one runnable application.
package app
