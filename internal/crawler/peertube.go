package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("peertube", func(_ *config.Config) Inspector {
		return &peertubeInspector{}
	})
}

// peertubeFollowPageSize is the page size of the server follow endpoints.
const peertubeFollowPageSize = 100

// peertubeInspector extracts the instance-to-instance follow graph of
// Peertube. Peertube declares its followees explicitly in configuration,
// so the graph does not depend on user activity.
type peertubeInspector struct{}

func (p *peertubeInspector) Software() string { return "peertube" }
func (p *peertubeInspector) Subject() string  { return "federation" }

func (p *peertubeInspector) Endpoints() []string {
	return []string{
		"/api/v1/server/following",
		"/api/v1/server/followers",
		"/api/v1/server/stats",
		"/api/v1/config",
	}
}

func (p *peertubeInspector) nodeFields() []string {
	return instanceFields(
		"totalUsers",
		"totalDailyActiveUsers",
		"totalWeeklyActiveUsers",
		"totalMonthlyActiveUsers",
		"totalLocalVideos",
		"totalVideos",
		"totalLocalPlaylists",
		"totalVideoComments",
		"totalLocalVideoComments",
		"totalLocalVideoViews",
		"serverVersion",
	)
}

func (p *peertubeInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: p.nodeFields()},
		{Name: DatasetInteractions, Fields: model.RelationFields()},
	}
}

// peertubeFollowPage is one page of /api/v1/server/following.
type peertubeFollowPage struct {
	Total int `json:"total"`
	Data  []struct {
		Following struct {
			Host string `json:"host"`
		} `json:"following"`
	} `json:"data"`
}

func (p *peertubeInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var stats map[string]any
	err := env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + "/api/v1/server/stats",
	}, &stats)
	if err != nil {
		record.Fail(err)
		return record
	}
	copyMetrics(record, p.nodeFields(), stats)

	var serverConfig struct {
		ServerVersion string `json:"serverVersion"`
	}
	if err := env.Pacer.Wait(ctx, host); err != nil {
		record.Fail(err)
		return record
	}
	err = env.Client.FetchJSON(ctx, fetch.Request{
		URL: "https://" + host + "/api/v1/config",
	}, &serverConfig)
	if err != nil {
		record.Fail(err)
		return record
	}
	record.Set("serverVersion", serverConfig.ServerVersion)

	followees, err := p.crawlFollowing(ctx, env, host)
	if err != nil {
		record.Fail(err)
		return record
	}
	if err := writeRelations(env, DatasetInteractions, host, followees, model.WeightLinked); err != nil {
		record.Fail(err)
	}
	return record
}

// crawlFollowing pages through the host's followee list.
func (p *peertubeInspector) crawlFollowing(ctx context.Context, env *Env, host string) ([]string, error) {
	var followees []string
	for page := 0; ; page++ {
		if page >= maxPageIterations {
			return nil, fmt.Errorf("followee list of %s did not terminate after %d pages", host, maxPageIterations)
		}
		if err := env.Pacer.Wait(ctx, host); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("count", strconv.Itoa(peertubeFollowPageSize))
		params.Set("start", strconv.Itoa(page*peertubeFollowPageSize))

		var resp peertubeFollowPage
		err := env.Client.FetchJSON(ctx, fetch.Request{
			URL:    "https://" + host + "/api/v1/server/following",
			Params: params,
		}, &resp)
		if err != nil {
			return nil, err
		}

		for _, link := range resp.Data {
			followees = append(followees, link.Following.Host)
		}
		if len(resp.Data) < peertubeFollowPageSize {
			return followees, nil
		}
	}
}
