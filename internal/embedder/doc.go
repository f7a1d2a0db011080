// Package embedder generates vector embeddings for document chunks.
//
// The Embedder interface abstracts over providers. Two remote providers
// (OpenAI and Ollama) speak HTTP with exponential-backoff retry; the local
// provider produces deterministic hash-based vectors and exists for tests
// and offline development.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: chunkTexts,
//	})
//
// # Caching
//
// An LRU cache keyed by content hash avoids re-embedding identical text.
// Batch task redelivery hits the cache for chunks already embedded in the
// failed attempt.
//
// # Failure Semantics
//
// Provider failures surface as ErrProviderFailed after retries are
// exhausted. Ingestion treats embedding failure as batch-level: the task
// delivery fails and the queue redelivers it.
package embedder
