// Package r2r provides a Go client for the R2R retrieval and RAG service (v3 REST API).
//
// The client covers the calls a probe needs: health, document listing and ingestion,
// chunk search and RAG completion.
//
//	client, err := r2r.Connect(ctx, "http://localhost:7272",
//	    r2r.WithRequestTimeout(2*time.Minute),
//	)
//	if err != nil {
//	    // errors.Is(err, r2r.ErrConnection)
//	}
//	defer client.Close()
//
//	res, _ := client.Retrieval().Search(ctx, r2r.SearchRequest{Query: "features", Limit: 5})
//	answer, _ := client.Retrieval().RAG(ctx, r2r.RAGRequest{Query: "what?", UseHybridSearch: true})
package r2r
