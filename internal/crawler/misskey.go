package crawler

import (
	"context"
	"fmt"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("misskey", func(_ *config.Config) Inspector {
		return &misskeyFederationInspector{}
	})
}

// misskeyFederationPageSize is the page size of /api/federation/instances.
const misskeyFederationPageSize = 30

// misskeyFederationInspector walks each host's federation list. Misskey
// reports every known peer regardless of software, so peers are filtered
// to misskey before the seed-set filter even sees them.
type misskeyFederationInspector struct{}

func (m *misskeyFederationInspector) Software() string { return "misskey" }
func (m *misskeyFederationInspector) Subject() string  { return "federation" }

func (m *misskeyFederationInspector) Endpoints() []string {
	return []string{"/api/federation/instances"}
}

func (m *misskeyFederationInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: instanceFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

// misskeyPeer is one entry of /api/federation/instances.
type misskeyPeer struct {
	Host         string `json:"host"`
	SoftwareName string `json:"softwareName"`
}

func (m *misskeyFederationInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var linked []string
	for offset := 0; ; offset += misskeyFederationPageSize {
		if offset/misskeyFederationPageSize >= maxPageIterations {
			record.Fail(fmt.Errorf("federation list of %s did not terminate after %d pages", host, maxPageIterations))
			return record
		}
		if offset > 0 {
			if err := env.Pacer.Wait(ctx, host); err != nil {
				record.Fail(err)
				return record
			}
		}

		var page []misskeyPeer
		err := env.Client.FetchJSON(ctx, fetch.Request{
			Method: "POST",
			URL:    "https://" + host + "/api/federation/instances",
			Body: map[string]any{
				"limit":  misskeyFederationPageSize,
				"offset": offset,
				"sort":   "+users",
			},
		}, &page)
		if err != nil {
			record.Fail(err)
			return record
		}

		for _, peer := range page {
			if peer.SoftwareName == "misskey" {
				linked = append(linked, peer.Host)
			}
		}
		if len(page) < misskeyFederationPageSize {
			break
		}
	}

	if err := writeRelations(env, DatasetInteractions, host, linked, model.WeightLinked); err != nil {
		record.Fail(err)
	}
	return record
}
