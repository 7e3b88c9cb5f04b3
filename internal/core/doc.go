// Package core implements customer bulk upload: parsing, validation,
// reconciliation against storage, and job coordination.
//
// It has no knowledge of HTTP or of a particular database. The web layer
// feeds it streams; storage is reached through [Repository], [KeyLocker]
// and [JobStore].
//
// # Pipeline
//
// Each upload runs as one [UploadJob]:
//
//  1. [NewParser] reads the header and yields [RowCandidate] values one at
//     a time, each tagged with the physical line it starts on.
//  2. [Validator] checks a candidate's required fields, then formats and
//     lengths in schema order, and produces a [NormalizedRecord].
//  3. [Reconciler] looks the record up by natural key and creates, updates
//     or skips it. Lost races are retried against the fresh row.
//  4. Outcomes are collected into an [OutcomeReport].
//
// Rows are processed strictly in file order. A bad row never stops the job;
// only a [StructuralError] (bad header, broken quoting, unreadable stream)
// or cancellation ends it early, with status failed. Rows committed before
// that point stay committed.
//
// # Concurrency
//
// [UploadLimiter] bounds the number of jobs in flight. Jobs for the same
// natural key are serialized by the [KeyLocker] when one is configured and,
// regardless, by optimistic version checks in the repository.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages by [MapError]. Each
// category has a code for support reference:
//
//   - PARSE001-PARSE008: file structure, encoding and size
//   - VAL001-VAL006: row validation
//   - REC001-REC002: reconciliation conflicts
//   - DB001-DB004: storage availability
//   - UPL001-UPL007: job lifecycle and request options
package core
