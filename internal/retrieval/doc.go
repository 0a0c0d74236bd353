// Package retrieval turns a query and a caller role into ranked,
// role-admissible results.
//
// Two Backend strategies enforce the same admission predicate
// (access.Decide) against different vector stores:
//
//   - ExactFilter pushes the admissible levels into the index query. Used
//     when the store can filter natively (Qdrant).
//   - PostFilter over-fetches limit x OverFetch unfiltered candidates and
//     admits them in rank order. Used for stores without index-side filters
//     (chromem). It may return fewer than limit results and never pads.
//
// The Orchestrator embeds the query, delegates to the backend chosen at
// construction and fails closed: any embedding or store error yields an
// empty result set and a diagnostic, never unfiltered data.
package retrieval
