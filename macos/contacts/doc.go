// Package contacts resolves raw phone/email handles to contact names and
// contact names back to raw handles.
//
// The package reads the local AddressBook databases in bulk to build an
// in-memory handle index, and issues targeted Contacts.app queries through
// osascript for one-off name searches. Both data sources are slow,
// permission-gated, and occasionally flaky, so the [Resolver] in front of
// them caches aggressively, coalesces concurrent rebuilds, and records a
// permission refusal as a valid empty cache rather than re-attempting a
// known-denied resource.
//
// Handle-to-name resolution ([Resolver.ResolveHandle],
// [Resolver.ResolveBatch]) degrades to "not found" on any failure: an
// unknown sender is a normal case for the message, mail, and calendar
// surfaces that call it. Name-to-handle resolution
// ([Resolver.ResolveNameToHandles]) does surface failures, because telling a
// user "no contact found" when the search merely timed out is misleading.
package contacts
