package seed

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fedigraph/fedigraph/internal/fetch"
)

// DefaultEndpoint is the public fediverse.observer GraphQL API.
const DefaultEndpoint = "https://api.fediverse.observer"

// Directory queries a node discovery service.
type Directory struct {
	client   *fetch.Client
	endpoint string
}

// NewDirectory creates a directory client on top of the shared fetch
// client. An empty endpoint selects DefaultEndpoint.
func NewDirectory(client *fetch.Client, endpoint string) *Directory {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Directory{client: client, endpoint: endpoint}
}

// graphqlQuery is the request body of the nodes query.
type graphqlQuery struct {
	Query string `json:"query"`
}

// nodesResponse is the shape of the directory's answer. Unrecognized keys
// are dropped by the JSON decoder.
type nodesResponse struct {
	Data struct {
		Nodes []struct {
			Domain string `json:"domain"`
		} `json:"nodes"`
	} `json:"data"`
}

// Hosts returns the hostnames of every instance of the given software the
// directory reports as up. Duplicate and empty domains are dropped.
func (d *Directory) Hosts(ctx context.Context, software string) ([]string, error) {
	query := fmt.Sprintf(`{nodes(softwarename:%q status: "UP"){domain}}`, software)

	var resp nodesResponse
	err := d.client.FetchJSON(ctx, fetch.Request{
		URL:    d.endpoint,
		Method: http.MethodPost,
		Body:   graphqlQuery{Query: query},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("node directory query for %q failed: %w", software, err)
	}

	seen := make(map[string]bool, len(resp.Data.Nodes))
	hosts := make([]string, 0, len(resp.Data.Nodes))
	for _, node := range resp.Data.Nodes {
		domain := strings.TrimSpace(node.Domain)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		hosts = append(hosts, domain)
	}
	return hosts, nil
}
