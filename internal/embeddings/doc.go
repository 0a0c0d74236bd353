// Package embeddings turns text into vectors.
//
// Three providers implement Provider:
//   - transformers: the t2v-transformers HTTP inference service (POST /vectors)
//   - fastembed: local ONNX models, only in cgo builds
//   - openai: the OpenAI embeddings API or a compatible server
//
// NewProvider builds the configured provider and, when a cache size is set,
// wraps it in a TTL-bounded LRU cache for query embeddings.
package embeddings
