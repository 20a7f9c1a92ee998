// Package core contains the entry credit domain contracts, entities, and the
// ingestion orchestration. Storage and transport adapters depend on this
// package; core must not depend on them.
//
// Every ingestion runs as one unit of work:
// duplicate check -> competition lookup -> entrant resolution -> entrant lock
// -> exclusivity check -> credit or review queue -> order claim.
// Events are written to the outbox inside the same transaction and delivered
// after commit by the OutboxDispatcher.
package core
