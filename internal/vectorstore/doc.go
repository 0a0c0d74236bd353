// Package vectorstore stores policy chunks with their embeddings and answers
// nearest-neighbour queries.
//
// Two implementations differ in where access filtering can happen:
//
// QdrantStore (exact filter):
//   - External Qdrant over gRPC (port 6334)
//   - LevelFilter becomes a payload filter on the access_level keyword field,
//     evaluated inside the index, so a query for k results returns up to k
//     admissible chunks
//   - Transient gRPC failures are retried with exponential backoff behind a
//     circuit breaker
//
// ChromemStore (approximate filter):
//   - Embedded chromem-go, in memory or persisted to gob files
//   - Query ranks by similarity only and rejects a LevelFilter with
//     ErrFilterUnsupported; callers over-fetch and filter afterwards
//   - Corrupt collection directories are quarantined on open
//
// Every record is keyed by document.Chunk.ID, a UUIDv5 of filename, access
// level and sequence id, so re-ingesting a document overwrites its points.
//
// Provider selection via config:
//
//	vectorstore:
//	  provider: qdrant  # "qdrant" (default) or "chromem"
//
// Stores never create or drop data implicitly beyond ensuring the collection
// exists; Reset is the only destructive operation.
package vectorstore
