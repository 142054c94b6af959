package crawler

import (
	"context"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("bookwyrm", func(_ *config.Config) Inspector {
		return &bookwyrmFederationInspector{}
	})
}

// bookwyrmFederationInspector reads the instance info and peer list of
// Bookwyrm hosts.
type bookwyrmFederationInspector struct{}

func (b *bookwyrmFederationInspector) Software() string { return "bookwyrm" }
func (b *bookwyrmFederationInspector) Subject() string  { return "federation" }

func (b *bookwyrmFederationInspector) Endpoints() []string {
	return []string{"/api/v1/instance", "/api/v1/instance/peers"}
}

func (b *bookwyrmFederationInspector) nodeFields() []string {
	return instanceFields("version", "registration_enabled")
}

func (b *bookwyrmFederationInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: b.nodeFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

func (b *bookwyrmFederationInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var info struct {
		Version       string `json:"version"`
		Registrations bool   `json:"registrations"`
	}
	err := env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + "/api/v1/instance",
	}, &info)
	if err != nil {
		record.Fail(err)
		return record
	}
	record.Set("version", info.Version)
	record.SetBool("registration_enabled", info.Registrations)

	if err := env.Pacer.Wait(ctx, host); err != nil {
		record.Fail(err)
		return record
	}
	var peers []string
	err = env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + "/api/v1/instance/peers",
	}, &peers)
	if err != nil {
		record.Fail(err)
		return record
	}

	if err := writeRelations(env, DatasetInteractions, host, peers, model.WeightLinked); err != nil {
		record.Fail(err)
	}
	return record
}
