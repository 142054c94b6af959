package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("lemmy", func(_ *config.Config) Inspector {
		return &lemmyFederationInspector{}
	})
}

// errFederationDisabled marks hosts that opted out of federation; their
// node record is failed and they contribute no edges.
var errFederationDisabled = errors.New("federation disabled")

// lemmyNodeFields is the instances schema shared by both lemmy subjects.
func lemmyNodeFields() []string {
	return instanceFields(
		"version",
		"users",
		"posts",
		"comments",
		"communities",
		"users_active_day",
		"users_active_week",
		"users_active_month",
		"users_active_half_year",
		"captcha_enabled",
		"require_email_verification",
	)
}

// lemmySiteResponse is the shape of /api/v3/site. The metric maps stay
// untyped because the key set moved between API generations; copyMetrics
// keeps whatever the schema recognizes and drops the rest.
type lemmySiteResponse struct {
	Version  string `json:"version"`
	SiteView struct {
		Counts    map[string]any `json:"counts"`
		Site      map[string]any `json:"site"`
		LocalSite map[string]any `json:"local_site"`
	} `json:"site_view"`
	FederatedInstances *struct {
		Linked  json.RawMessage `json:"linked"`
		Blocked json.RawMessage `json:"blocked"`
	} `json:"federated_instances"`
}

// fetchLemmySite retrieves /api/v3/site and fills the node record's
// metrics. Returns errFederationDisabled for hosts that turned federation
// off.
func fetchLemmySite(ctx context.Context, env *Env, host string, fields []string, record *model.NodeRecord) (*lemmySiteResponse, error) {
	var site lemmySiteResponse
	err := env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + "/api/v3/site",
	}, &site)
	if err != nil {
		return nil, err
	}

	copyMetrics(record, fields, site.SiteView.Counts)
	record.Set("version", site.Version)

	// Older API generations keep the site settings under "site"; newer
	// ones moved them to "local_site".
	if len(site.SiteView.LocalSite) == 0 {
		copyMetrics(record, fields, site.SiteView.Site)
	} else {
		copyMetrics(record, fields, site.SiteView.LocalSite)
		if enabled, ok := site.SiteView.LocalSite["federation_enabled"].(bool); ok && !enabled {
			return &site, errFederationDisabled
		}
	}
	return &site, nil
}

// lemmyDomains decodes a linked/blocked instance list. Old API versions
// return a plain hostname array; newer ones return objects with domain and
// software fields, where only lemmy peers are kept.
func lemmyDomains(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var typed []struct {
		Domain   string `json:"domain"`
		Software string `json:"software"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil
	}
	var domains []string
	for _, instance := range typed {
		if instance.Software == "lemmy" {
			domains = append(domains, instance.Domain)
		}
	}
	return domains
}

// lemmyFederationInspector extracts the instance-level federation graph:
// linked instances as +1 edges, blocked instances as -1 edges.
type lemmyFederationInspector struct{}

func (l *lemmyFederationInspector) Software() string { return "lemmy" }
func (l *lemmyFederationInspector) Subject() string  { return "federation" }

func (l *lemmyFederationInspector) Endpoints() []string {
	return []string{"/api/v3/site", "/api/v3/federated_instances"}
}

func (l *lemmyFederationInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: lemmyNodeFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

func (l *lemmyFederationInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	site, err := fetchLemmySite(ctx, env, host, lemmyNodeFields(), record)
	if err != nil {
		record.Fail(err)
		return record
	}

	var linked, blocked []string
	if site.FederatedInstances != nil {
		// The site response embeds the lists directly on older versions.
		linked = lemmyDomains(site.FederatedInstances.Linked)
		blocked = lemmyDomains(site.FederatedInstances.Blocked)
	} else {
		if err := env.Pacer.Wait(ctx, host); err != nil {
			record.Fail(err)
			return record
		}
		var resp struct {
			FederatedInstances struct {
				Linked  json.RawMessage `json:"linked"`
				Blocked json.RawMessage `json:"blocked"`
			} `json:"federated_instances"`
		}
		err := env.Client.FetchJSON(ctx, fetch.Request{
			URL: "https://" + host + "/api/v3/federated_instances",
		}, &resp)
		if err != nil {
			record.Fail(fmt.Errorf("federated instance list: %w", err))
			return record
		}
		linked = lemmyDomains(resp.FederatedInstances.Linked)
		blocked = lemmyDomains(resp.FederatedInstances.Blocked)
	}

	if err := writeRelations(env, DatasetInteractions, host, linked, model.WeightLinked); err != nil {
		record.Fail(err)
		return record
	}
	if err := writeRelations(env, DatasetInteractions, host, blocked, model.WeightBlocked); err != nil {
		record.Fail(err)
	}
	return record
}
