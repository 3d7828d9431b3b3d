// Package pimbridge is a lightweight index for the subpackages in this module.
//
// This root package is documentation-only. Import specific subpackages to use
// concrete helpers, or run the cmd/pimbridge binary to expose everything as
// MCP tools over stdio.
//
// Available subpackages:
//   - github.com/pimbridge/pimbridge/macos/osascript
//     Safe construction and execution of osascript automation snippets.
//   - github.com/pimbridge/pimbridge/macos/contacts
//     Contact resolution: raw phone/email handles to names and back.
//   - github.com/pimbridge/pimbridge/macos/messages
//     macOS Messages helpers backed by the local chat database.
//   - github.com/pimbridge/pimbridge/macos/calendar
//     Calendar.app event listing, search, and creation.
//   - github.com/pimbridge/pimbridge/macos/notes
//     Notes.app listing, search, and creation.
//   - github.com/pimbridge/pimbridge/macos/reminders
//     Reminders.app listing, search, and creation.
//   - github.com/pimbridge/pimbridge/mail
//     IMAP/SMTP mailbox access with app-password authentication.
//   - github.com/pimbridge/pimbridge/timebound
//     Deadline wrapper for optional enrichment calls.
//   - github.com/pimbridge/pimbridge/config
//     YAML configuration with environment overrides.
//
// Discovery workflow for agents:
//   - Run: go doc github.com/pimbridge/pimbridge
//   - Then drill in with:
//     go doc github.com/pimbridge/pimbridge/macos/contacts
//     go doc github.com/pimbridge/pimbridge/macos/messages
//     go doc github.com/pimbridge/pimbridge/mail
package pimbridge
