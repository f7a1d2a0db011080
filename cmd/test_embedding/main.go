package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/corpusd/corpusd/internal/embedder"
)

// Diagnostic for embedding provider connectivity. Resolves the provider
// from the environment the same way the server does, embeds a sample
// document, and verifies single and batch requests agree.
func main() {
	fmt.Println("Testing embedding provider...")

	_ = godotenv.Load()

	emb, err := embedder.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer emb.Close()

	fmt.Printf("\nProvider Configuration:\n")
	fmt.Printf("  Provider: %s\n", emb.Provider())
	fmt.Printf("  Model: %s\n", emb.Model())
	fmt.Printf("  Dimension: %d\n", emb.Dimension())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Vector search retrieves documents by semantic similarity.",
		"Batch ingestion splits a corpus into parallel chunks.",
		"Incremental sync re-processes only files changed since the last commit.",
	}

	start := time.Now()
	single, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: texts[0]})
	if err != nil {
		log.Fatalf("Single embedding failed: %v", err)
	}
	singleDur := time.Since(start)

	start = time.Now()
	batch, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		log.Fatalf("Batch embedding failed: %v", err)
	}
	batchDur := time.Since(start)

	fmt.Printf("\nResults:\n")
	fmt.Printf("  Single: %d dims in %v\n", single.Dimension, singleDur)
	fmt.Printf("  Batch: %d embeddings in %v\n", len(batch.Embeddings), batchDur)

	ok := true
	if len(batch.Embeddings) != len(texts) {
		fmt.Printf("  ✗ Batch returned %d embeddings for %d texts\n", len(batch.Embeddings), len(texts))
		ok = false
	}
	for i, e := range batch.Embeddings {
		if e.Dimension != emb.Dimension() {
			fmt.Printf("  ✗ Embedding %d has dimension %d, want %d\n", i, e.Dimension, emb.Dimension())
			ok = false
		}
	}
	if !vectorsEqual(single.Vector, batch.Embeddings[0].Vector) {
		fmt.Printf("  ✗ Single and batch embeddings of the same text disagree\n")
		ok = false
	}

	if ok {
		fmt.Println("\n✓ SUCCESS: Provider is reachable and consistent!")
	} else {
		fmt.Println("\n✗ FAILURE: Provider responses are inconsistent!")
		os.Exit(1)
	}
}

func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
