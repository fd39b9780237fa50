// Package services defines shared utilities consumed by the stage drivers and
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp release names, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify driver
//     failures (configuration, spawn, transfer, auth, archive, install) so the
//     workflow can record a precise message on the queue item.
//
// Use these helpers when wiring new driver logic so failure reporting and log
// fields stay uniform across stages.
package services
