// Package messages reads and sends macOS Messages conversations.
//
// Reads go straight to the local chat database
// (~/Library/Messages/chat.db) over a read-only sqlite connection; sends go
// through Messages.app via osascript. Sender handles are enriched to
// contact names through a resolver behind a bounded deadline, so a slow or
// denied Contacts store can never stall a message listing.
//
// Requires Full Disk Access for the reading paths and Automation consent
// for the sending path.
package messages
