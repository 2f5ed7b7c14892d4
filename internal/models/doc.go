// Package models defines the domain entities exchanged with the course library server and persisted locally.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): structs decoded from the course library HTTP API
//   - [Scan] : an active background scan job for a single course
//   - [Course] : a course record, refreshed once its scan completes
//   - [ScanEvent] : a typed message from the scan push channel
//   - [ScanList] : the active scan listing, bare array or paginated envelope
//
// 2. Persistent Entities: database-backed models with a lifecycle on this client
//   - [ScanCompletion] : a scan completion observed by the monitor
//
// Every DTO decoded from the network passes through [Validate], which applies the
// go-playground/validator struct tags declared on each type.
package models
