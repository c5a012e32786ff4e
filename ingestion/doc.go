// Package ingestion runs scrape cycles and writes their output to the vector index.
//
// A Coordinator drives one cycle end to end: it loads the entity registry,
// scrapes every registered URL, groups the resulting documents by owning
// entity, and ingests each group concurrently. Ingesting an entity chunks its
// documents, embeds the chunks in batches, and appends them both to the
// entity's own collection and to the aggregate collection.
//
// Entities are independent. A failure in one is logged and recorded but never
// cancels its siblings; once every entity has finished, the failures are
// returned together as an *Error.
package ingestion
