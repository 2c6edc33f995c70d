// Package record defines the contract between the engine and the service
// that owns user credential records and the security incident log.
//
// Sub-packages provide implementations: memory (in-process), sqlite,
// postgres and mongo. All of them guarantee that Create is an atomic
// insert-if-absent keyed by the normalized email.
package record
