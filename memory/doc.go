// Package memory reconciles a small, perishable prompt window with a
// durable, semantically-searchable long-term store.
//
// The decision core is four components wired per turn:
//   - WriteGate: decides whether a turn holds anything worth persisting
//   - FactExtractor: turns a triggered turn into atomic facts
//   - RecallRouter: decides whether to query long-term memory, and issues
//     at most one store query per turn
//   - ContextAssembler: merges trimmed short-term context with recalled
//     facts into a bounded prompt payload
//
// The store and embedder are external collaborators behind the Store and
// Embedder interfaces:
//   - store/memstore: in-process reference store for tests
//   - store/chromem: chromem-go embedded vector database
//   - store/cached: ristretto read-through cache over any Store
//   - embedder/mock: deterministic hash embedder
//   - embedder/onnx: local all-MiniLM-L6-v2 (build tag "onnx")
//
// The tie-break policy throughout the write path: when a trigger is
// ambiguous, do not write. Missed writes lose one fact; spurious writes
// pollute the store permanently and degrade retrieval precision for every
// later query.
package memory
