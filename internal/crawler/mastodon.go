package crawler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("mastodon", func(_ *config.Config) Inspector {
		return &mastodonFederationInspector{
			software:     "mastodon",
			infoEndpoint: "/api/v2/instance",
		}
	})
	// Pleroma and its forks expose the mastodon-compatible API, except the
	// instance info still lives at the v1 path.
	register("pleroma", func(_ *config.Config) Inspector {
		return &mastodonFederationInspector{
			software:     "pleroma",
			infoEndpoint: "/api/v1/instance",
		}
	})
}

// mastodonFederationInspector reads the instance info and the public peer
// list. The peers endpoint reports every host the instance ever federated
// with, so the seed-set filter is what keeps the edge list meaningful.
type mastodonFederationInspector struct {
	software     string
	infoEndpoint string
}

func (m *mastodonFederationInspector) Software() string { return m.software }
func (m *mastodonFederationInspector) Subject() string  { return "federation" }

func (m *mastodonFederationInspector) Endpoints() []string {
	return []string{m.infoEndpoint, "/api/v1/instance/peers"}
}

func (m *mastodonFederationInspector) nodeFields() []string {
	return instanceFields(
		"version",
		"active_users",
		"languages",
		"registration_enabled",
	)
}

func (m *mastodonFederationInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: m.nodeFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

// mastodonInstanceInfo covers both API generations: v2 nests the active
// user count under usage and the registration flag under an object, v1
// reports a plain boolean.
type mastodonInstanceInfo struct {
	Version   string   `json:"version"`
	Languages []string `json:"languages"`
	Usage     struct {
		Users struct {
			ActiveMonth int64 `json:"active_month"`
		} `json:"users"`
	} `json:"usage"`
	Registrations json.RawMessage `json:"registrations"`
}

// registrationEnabled decodes the registrations field of either API shape.
func registrationEnabled(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}
	var plain bool
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, true
	}
	var typed struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(raw, &typed); err == nil {
		return typed.Enabled, true
	}
	return false, false
}

func (m *mastodonFederationInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var info mastodonInstanceInfo
	err := env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + m.infoEndpoint,
	}, &info)
	if err != nil {
		record.Fail(err)
		return record
	}
	record.Set("version", info.Version)
	record.SetInt("active_users", info.Usage.Users.ActiveMonth)
	record.Set("languages", strings.Join(info.Languages, "/"))
	if enabled, ok := registrationEnabled(info.Registrations); ok {
		record.SetBool("registration_enabled", enabled)
	}

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
