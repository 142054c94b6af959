package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/graph"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("lemmy", func(cfg *config.Config) Inspector {
		return &lemmyCommunityInspector{
			activityScope:  cfg.ActivityScope,
			minActiveUsers: cfg.MinActiveUsers,
		}
	})
}

// Dataset names of the lemmy community subject.
const (
	// DatasetDetailedInteractions holds raw per-post interaction rows. It
	// only exists to feed post-processing and is removed during cleaning.
	DatasetDetailedInteractions = "detailed_interactions"

	// DatasetIntraInstance is the aggregated activity graph: posts by one
	// host's users in communities owned by another host.
	DatasetIntraInstance = "intra_instance_interactions"

	// DatasetCrossInstance is the aggregated shared-interest graph: the
	// number of communities two hosts' users both posted in.
	DatasetCrossInstance = "cross_instance_interactions"

	// DatasetCommunityActivity is the per-community recognized post count.
	DatasetCommunityActivity = "community_activity"

	// DatasetCommunityOwnership maps each community to its host, with the
	// community's own counters.
	DatasetCommunityOwnership = "community_ownership"
)

// lemmyCommunityPageSize is the largest page size /api/v3 accepts.
const lemmyCommunityPageSize = 50

func lemmyOwnershipFields() []string {
	return []string{
		"instance",
		"community",
		"subscribers",
		"posts",
		"comments",
		"users_active_day",
		"users_active_week",
		"users_active_month",
	}
}

func lemmyDetailedInteractionFields() []string {
	return []string{
		"user_instance",
		"community",
		"community_instance",
		"username",
		"post_id",
	}
}

// lemmyCommunityInspector extracts community-level activity: which hosts'
// users post in which hosts' communities. The raw post stream goes to a
// temporary dataset; post-processing composes it into the two aggregated
// host graphs.
type lemmyCommunityInspector struct {
	activityScope  string
	minActiveUsers int
}

func (l *lemmyCommunityInspector) Software() string { return "lemmy" }
func (l *lemmyCommunityInspector) Subject() string  { return "community" }

func (l *lemmyCommunityInspector) Endpoints() []string {
	return []string{
		"/api/v3/site",
		"/api/v3/community/list",
		"/api/v3/post/list",
	}
}

func (l *lemmyCommunityInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: lemmyNodeFields()},
		{Name: DatasetDetailedInteractions, Fields: lemmyDetailedInteractionFields(), Temporary: true},
		{Name: DatasetIntraInstance, Fields: model.RelationFields()},
		{Name: DatasetCrossInstance, Fields: model.RelationFields()},
		{Name: DatasetCommunityActivity, Fields: []string{"instance", "community", "number_posts"}},
		{Name: DatasetCommunityOwnership, Fields: lemmyOwnershipFields()},
	}
}

func (l *lemmyCommunityInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	if _, err := fetchLemmySite(ctx, env, host, lemmyNodeFields(), record); err != nil {
		record.Fail(err)
		return record
	}

	// The node record stands on the site info alone; a broken community or
	// post listing loses edges, not the node.
	communities, err := l.crawlCommunityList(ctx, env, host)
	if err != nil {
		env.Logger.Debug("community list failed", "host", host, "error", err)
		return record
	}

	for _, community := range communities {
		if err := l.crawlCommunityPosts(ctx, env, host, community); err != nil {
			env.Logger.Debug("post list failed",
				"host", host,
				"community", community,
				"error", err,
			)
			return record
		}
	}
	return record
}

// lemmyCommunityPage is one page of /api/v3/community/list.
type lemmyCommunityPage struct {
	Communities []struct {
		Community struct {
			Name string `json:"name"`
		} `json:"community"`
		Counts map[string]any `json:"counts"`
	} `json:"communities"`
}

// activeUsers extracts the activity counter matching the configured scope.
func (l *lemmyCommunityInspector) activeUsers(counts map[string]any) float64 {
	key := map[string]string{
		"TopDay":   "users_active_day",
		"TopWeek":  "users_active_week",
		"TopMonth": "users_active_month",
	}[l.activityScope]
	if n, ok := counts[key].(float64); ok {
		return n
	}
	return 0
}

// crawlCommunityList pages through the host's local communities, sorted by
// recent activity, and stops at the first community below the active-user
// threshold. Each kept community contributes an ownership row.
func (l *lemmyCommunityInspector) crawlCommunityList(ctx context.Context, env *Env, host string) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		if page > maxPageIterations {
			return nil, fmt.Errorf("community list of %s did not terminate after %d pages", host, maxPageIterations)
		}
		if err := env.Pacer.Wait(ctx, host); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", strconv.Itoa(lemmyCommunityPageSize))
		params.Set("type_", "Local")
		params.Set("sort", l.activityScope)

		var resp lemmyCommunityPage
		err := env.Client.FetchJSON(ctx, fetch.Request{
			URL:    "https://" + host + "/api/v3/community/list",
			Params: params,
		}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Communities) == 0 {
			return names, nil
		}

		for _, entry := range resp.Communities {
			// The listing is sorted by activity, so the first community
			// under the threshold ends the crawl.
			if l.activeUsers(entry.Counts) < float64(l.minActiveUsers) {
				return names, nil
			}

			row := make([]string, 0, len(lemmyOwnershipFields()))
			for _, field := range lemmyOwnershipFields() {
				switch field {
				case "instance":
					row = append(row, host)
				case "community":
					row = append(row, entry.Community.Name)
				default:
					row = append(row, metricString(entry.Counts[field]))
				}
			}
			if err := env.Sink.Write(DatasetCommunityOwnership, row); err != nil {
				return nil, err
			}
			names = append(names, entry.Community.Name)
		}

		if len(resp.Communities) < lemmyCommunityPageSize {
			return names, nil
		}
	}
}

// lemmyPostPage is one page of /api/v3/post/list.
type lemmyPostPage struct {
	Posts []struct {
		Post struct {
			ApID string `json:"ap_id"`
		} `json:"post"`
		Creator struct {
			Name    string `json:"name"`
			ActorID string `json:"actor_id"`
		} `json:"creator"`
	} `json:"posts"`
}

// crawlCommunityPosts pages through one community's posts and records an
// interaction row for every post whose author lives on a crawled host.
func (l *lemmyCommunityInspector) crawlCommunityPosts(ctx context.Context, env *Env, host, community string) error {
	for page := 1; ; page++ {
		if page > maxPageIterations {
			return fmt.Errorf("post list of %s@%s did not terminate after %d pages", community, host, maxPageIterations)
		}
		if err := env.Pacer.Wait(ctx, host); err != nil {
			return err
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", strconv.Itoa(lemmyCommunityPageSize))
		params.Set("sort", l.activityScope)
		params.Set("community_name", community)

		var resp lemmyPostPage
		err := env.Client.FetchJSON(ctx, fetch.Request{
			URL:    "https://" + host + "/api/v3/post/list",
			Params: params,
		}, &resp)
		if err != nil {
			return err
		}
		if len(resp.Posts) == 0 {
			return nil
		}

		for _, post := range resp.Posts {
			userHost := hostFromURL(post.Creator.ActorID)
			if !env.Seeds[userHost] {
				continue
			}
			err := env.Sink.Write(DatasetDetailedInteractions, []string{
				userHost,
				community + "@" + host,
				host,
				post.Creator.Name,
				post.Post.ApID,
			})
			if err != nil {
				return err
			}
		}

		if len(resp.Posts) < lemmyCommunityPageSize {
			return nil
		}
	}
}

// PostProcess composes the raw post stream into the aggregated host graphs
// and the per-community activity table.
func (l *lemmyCommunityInspector) PostProcess(ctx context.Context, env *Env) error {
	builder := graph.NewBuilder(env.Logger)

	ownershipPath, err := env.Sink.Path(DatasetCommunityOwnership)
	if err != nil {
		return err
	}
	err = readDataset(ownershipPath, func(row map[string]string) error {
		return builder.AddGroup(row["community"]+"@"+row["instance"], row["instance"])
	})
	if err != nil {
		return fmt.Errorf("reading community ownership: %w", err)
	}

	interactionsPath, err := env.Sink.Path(DatasetDetailedInteractions)
	if err != nil {
		return err
	}
	err = readDataset(interactionsPath, func(row map[string]string) error {
		builder.AddInteraction(row["user_instance"], row["community"])
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading detailed interactions: %w", err)
	}

	result := builder.Build()

	for _, activity := range result.Activity {
		err := env.Sink.Write(DatasetCommunityActivity, []string{
			activity.Host,
			activity.Group,
			strconv.FormatInt(activity.Count, 10),
		})
		if err != nil {
			return err
		}
	}
	for _, relation := range result.SameHost {
		if err := env.Sink.Write(DatasetIntraInstance, relation.Row()); err != nil {
			return err
		}
	}
	for _, relation := range result.SharedInterest {
		if err := env.Sink.Write(DatasetCrossInstance, relation.Row()); err != nil {
			return err
		}
	}

	env.Logger.Info("aggregated community interactions",
		"recognized", result.Recognized,
		"communities", len(result.Activity),
		"same_host_edges", len(result.SameHost),
		"shared_interest_edges", len(result.SharedInterest),
	)
	return nil
}
