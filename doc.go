// Package ragcore implements the retrieval core of a workspace-scoped RAG
// system: it turns a user query and a collection of ingested document chunks
// into a ranked, cited context set under two interchangeable retrieval
// strategies.
//
// # Components
//
//   - index: an in-memory vector index with cosine-similarity search,
//     partitioned per workspace
//   - graphstore: a knowledge graph store with merge-on-insert entity
//     resolution, confidence-thresholded relationships, bounded breadth-first
//     expansion and induced subgraphs
//   - community: Louvain and Leiden community detection over the relationship
//     graph, with an atomically swapped per-workspace community set
//   - retriever: the vector and graph retrieval strategies behind a single
//     Strategy interface
//   - engine: the query entry point, the token-budgeted context assembler and
//     the streaming answer generator
//   - chunkstore: chunk persistence backends (memory, redis, postgres, sqlite)
//   - ingest: text splitting and the document ingestion pipeline
//   - embedding, extract, llm: clients for the external embedding, entity
//     extraction and chat completion services
//
// # Basic Usage
//
//	idx := index.New(ragcore.DefaultWorkspaceConfig())
//	graph := graphstore.New(ragcore.DefaultWorkspaceConfig())
//	chunks := chunkstore.NewMemoryStore()
//
//	client := llm.NewClient(llm.Options{APIKey: key})
//	embedder := embedding.NewOpenAIEmbedder(embedding.OpenAIOptions{APIKey: key})
//
//	eng := engine.New(client, engine.EngineOptions{})
//	eng.RegisterStrategy(engine.StrategyVector,
//		retriever.NewVectorStrategy(embedder, idx, chunks, retriever.VectorOptions{}))
//
//	pctx, err := eng.Query(ctx, "ws-1", "how does billing work?", engine.StrategyVector)
//
// The engine returns a PromptContext with citations; engine.Answer streams the
// generated answer as a cancellable sequence of fragments.
//
// Workspaces are hard isolation boundaries: no query ever returns chunks,
// entities or communities belonging to another workspace.
package ragcore
