// Copyright 2024-2026 Aiku AI

// Package connector implements the Skype side of a Matrix-Skype puppeting
// bridge: one authenticated Skype session per linked account, relayed in
// both directions through a pluggable home-network framework.
//
// # Core Types
//
// [SkypeConnector] manages the account registry, connects and disconnects
// puppets, applies the reconnect policy and relays events in both
// directions.
//
// [SkypeClient] owns one account's remote session: login with stored
// session reuse and credential fallback, the single-goroutine event drain,
// the contact and conversation caches and the periodic contact refresh.
//
// [HomeNetwork] and [EventStore] abstract the home side: the production
// implementation lives in the mxbridge package, tests inject mocks.
//
// # Echo Prevention
//
// Skype notifies the sender about its own messages, usually twice. The
// relay suppresses these with two cooperating layers: [Deduplicator]
// swallows the first echo of a locked local send by content or
// server-assigned id, and a TTL set of handled message ids drops the
// repeat notification. A third TTL set remembers deliberate deletions so
// the network's edited-to-empty confirmation is not bridged back as a
// second redaction. These layers must not be simplified or removed.
//
// # Sub-packages
//
//   - matrixfmt converts Matrix HTML to Skype markup.
//   - skypefmt converts Skype markup to a Matrix body/formatted_body pair.
package connector
