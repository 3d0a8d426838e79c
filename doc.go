// Adaptive RAG - a conversational agent that decides per turn how much
// context it needs.
//
// Each user message is routed to one of three paths: a direct reply for small
// talk, a plain model answer for general questions, or a lookup in the local
// knowledge base. Retrieved context is judged for sufficiency and, when it
// falls short, web search fills the gap before the final answer is written.
// Conversations are kept per thread id and survive restarts when a durable
// thread store is configured.
//
// # Quick Start
//
// Index a directory of documents and ask a question:
//
//	export OPENAI_API_KEY=...
//	export TAVILY_API_KEY=...
//	adaptiverag ingest -dir docs
//	adaptiverag ask "What does the onboarding guide say about VPN access?"
//
// Or embed the agent:
//
//	model, _ := llm.NewOpenAIModel(cfg)
//	embedder := rag.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbedModel)
//	vectors, _ := store.NewSQLiteVectorStore(ctx, store.SQLiteOptions{Path: "adaptiverag.db"})
//
//	a, _ := agent.New(llm.NewLangChainCompleter(model),
//		agent.WithRetriever(rag.NewRetriever(embedder, vectors, 3)),
//		agent.WithWebSearch(search),
//	)
//	reply, err := a.RunTurn(ctx, agent.NewThreadID(), "What is LangGraph?")
//
// # Packages
//
//   - graph: generic state graph with path-mapped conditional edges
//   - agent: the router, retrieval, judge, web search and answer nodes
//   - rag: chunks, embedders, retriever; rag/store, rag/loader and rag/ingest
//     build and hold the knowledge base
//   - llm: chat completion and JSON structured output over langchaingo
//   - tool: Tavily and Brave web search, calculator, knowledge base tool
//   - store: thread persistence in memory, SQLite, Redis or PostgreSQL
//   - config, log: environment configuration and leveled logging
package adaptiverag
