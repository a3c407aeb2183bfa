package main

import (
	"context"

	"github.com/kailas-cloud/r2rprobe/internal/probe"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

// clientGateway adapts *r2r.Client to probe.Gateway.
type clientGateway struct {
	client *r2r.Client
}

var _ probe.Gateway = (*clientGateway)(nil)

func (g *clientGateway) Health(ctx context.Context) (r2r.HealthStatus, error) {
	return g.client.Health(ctx)
}

func (g *clientGateway) ListDocuments(ctx context.Context, limit int) (r2r.DocumentList, error) {
	return g.client.Documents().List(ctx, r2r.ListOptions{Limit: limit})
}

func (g *clientGateway) IngestDocument(
	ctx context.Context, path string, metadata map[string]any,
) (r2r.IngestResult, error) {
	return g.client.Documents().Create(ctx, r2r.CreateDocumentRequest{
		FilePath: path,
		Metadata: metadata,
	})
}

func (g *clientGateway) Search(ctx context.Context, query string, limit int) (r2r.SearchResult, error) {
	return g.client.Retrieval().Search(ctx, r2r.SearchRequest{
		Query: query,
		Limit: limit,
	})
}

func (g *clientGateway) RAG(ctx context.Context, query string, useHybridSearch bool) (r2r.RAGResult, error) {
	return g.client.Retrieval().RAG(ctx, r2r.RAGRequest{
		Query:           query,
		UseHybridSearch: useHybridSearch,
	})
}

// connector opens clients for the probe and closes them once the run ends.
type connector struct {
	opts    []r2r.Option
	clients []*r2r.Client
}

func newConnector(opts ...r2r.Option) *connector {
	return &connector{opts: opts}
}

func (c *connector) connect(ctx context.Context, baseURL string) (probe.Gateway, error) {
	client, err := r2r.Connect(ctx, baseURL, c.opts...)
	if err != nil {
		return nil, err
	}
	c.clients = append(c.clients, client)
	return &clientGateway{client: client}, nil
}

// Close releases idle connections of every opened client.
func (c *connector) Close() {
	for _, client := range c.clients {
		client.Close()
	}
	c.clients = nil
}
