package crawler

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/model"
)

func init() {
	register("misskey", func(cfg *config.Config) Inspector {
		return &misskeyTopUserInspector{topUsers: cfg.TopUsers}
	})
}

// Dataset names of the misskey top_user subject.
const (
	// DatasetFollows is the aggregated instance follow graph.
	DatasetFollows = "follows"

	// DatasetCrawledUsers lists the users explored on each host.
	DatasetCrawledUsers = "crawled_users"

	// DatasetCrawledFollows holds raw follower edges; post-processing
	// aggregates it into DatasetFollows and cleaning removes it.
	DatasetCrawledFollows = "crawled_follows"
)

const (
	// misskeyUserPageSize is the page size of the user endpoints.
	misskeyUserPageSize = 100

	// misskeyUserFailureRatio aborts a host once this share of its
	// explored users could not be crawled.
	misskeyUserFailureRatio = 0.05
)

// misskeyTopUserInspector samples each host's most-followed local users
// and walks their follower lists, producing a user-level view of the
// follow graph that post-processing rolls up per instance pair.
type misskeyTopUserInspector struct {
	topUsers int
}

func (m *misskeyTopUserInspector) Software() string { return "misskey" }
func (m *misskeyTopUserInspector) Subject() string  { return "top_user" }

func (m *misskeyTopUserInspector) Endpoints() []string {
	return []string{"/api/stats", "/api/users", "/api/users/followers"}
}

func (m *misskeyTopUserInspector) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetInstances, Fields: instanceFields("users_count", "posts_count")},
		{Name: DatasetFollows, Fields: model.RelationFields()},
		{
			Name: DatasetCrawledUsers,
			Fields: []string{
				"id",
				"username",
				"instance",
				"followers_count",
				"following_count",
				"posts_count",
			},
			Temporary: true,
		},
		{
			Name: DatasetCrawledFollows,
			Fields: []string{
				"follower",
				"follower_instance",
				"followee",
				"followee_instance",
			},
			Temporary: true,
		},
	}
}

// misskeyUser is one entry of /api/users.
type misskeyUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Host           string `json:"host"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
	NotesCount     int64  `json:"notesCount"`
}

func (m *misskeyTopUserInspector) Inspect(ctx context.Context, env *Env, host string) *model.NodeRecord {
	record := model.NewNodeRecord(host)

	var stats struct {
		OriginalUsersCount int64 `json:"originalUsersCount"`
		OriginalNotesCount int64 `json:"originalNotesCount"`
	}
	err := env.Client.FetchJSON(ctx, fetch.Request{
		Method: "POST",
		URL:    "https://" + host + "/api/stats",
		Body:   map[string]any{},
	}, &stats)
	if err != nil {
		record.Fail(err)
		return record
	}
	record.SetInt("users_count", stats.OriginalUsersCount)
	record.SetInt("posts_count", stats.OriginalNotesCount)

	users, err := m.crawlUserList(ctx, env, host)
	if err != nil {
		env.Logger.Debug("user list failed", "host", host, "error", err)
		return record
	}

	// Individual users disappearing mid-crawl is normal; a large failure
	// share means the host itself is misbehaving.
	var attempted, failed int
	for _, user := range users {
		if user.FollowersCount == 0 {
			continue
		}
		attempted++
		if err := m.crawlFollowers(ctx, env, host, user); err != nil {
			failed++
			env.Logger.Debug("follower list failed",
				"host", host,
				"user", user.Username,
				"error", err,
			)
			if float64(failed) > misskeyUserFailureRatio*float64(attempted) {
				record.Fail(fmt.Errorf("too many user crawls failed: %d of %d", failed, attempted))
				return record
			}
		}
	}
	return record
}

// crawlUserList fetches up to topUsers local users ordered by follower
// count and records them in the crawled_users dataset.
func (m *misskeyTopUserInspector) crawlUserList(ctx context.Context, env *Env, host string) ([]misskeyUser, error) {
	var users []misskeyUser
	for offset := 0; len(users) < m.topUsers; {
		if offset/misskeyUserPageSize >= maxPageIterations {
			return nil, fmt.Errorf("user list of %s did not terminate after %d pages", host, maxPageIterations)
		}
		if err := env.Pacer.Wait(ctx, host); err != nil {
			return nil, err
		}

		limit := misskeyUserPageSize
		if missing := m.topUsers - len(users); missing < limit {
			limit = missing
		}

		var page []misskeyUser
		err := env.Client.FetchJSON(ctx, fetch.Request{
			Method: "POST",
			URL:    "https://" + host + "/api/users",
			Body: map[string]any{
				"limit":  limit,
				"offset": offset,
				"origin": "local",
				"sort":   "+follower",
			},
		}, &page)
		if err != nil {
			return nil, err
		}

		users = append(users, page...)
		if len(page) < limit {
			break
		}
		offset += len(page)
	}

	rows := make([][]string, 0, len(users))
	for _, user := range users {
		rows = append(rows, []string{
			user.ID,
			user.Username,
			host,
			strconv.FormatInt(user.FollowersCount, 10),
			strconv.FormatInt(user.FollowingCount, 10),
			strconv.FormatInt(user.NotesCount, 10),
		})
	}
	if err := env.Sink.WriteAll(DatasetCrawledUsers, rows); err != nil {
		return nil, err
	}
	return users, nil
}

// misskeyFollower is one entry of /api/users/followers.
type misskeyFollower struct {
	ID       string `json:"id"`
	Follower struct {
		Username string `json:"username"`
		Host     string `json:"host"`
	} `json:"follower"`
}

// crawlFollowers walks one user's follower list with cursor pagination
// and appends the raw edges to the crawled_follows dataset. An empty host
// in the API response means a local account.
func (m *misskeyTopUserInspector) crawlFollowers(ctx context.Context, env *Env, host string, user misskeyUser) error {
	followee := user.Username
	followeeHost := user.Host
	if followeeHost == "" {
		followeeHost = host
	}

	sinceID := "0"
	for page := 0; ; page++ {
		if page >= maxPageIterations {
			return fmt.Errorf("follower list of %s@%s did not terminate after %d pages", user.Username, host, maxPageIterations)
		}
		if err := env.Pacer.Wait(ctx, host); err != nil {
			return err
		}

		var resp []misskeyFollower
		err := env.Client.FetchJSON(ctx, fetch.Request{
			Method: "POST",
			URL:    "https://" + host + "/api/users/followers",
			Body: map[string]any{
				"limit":   misskeyUserPageSize,
				"sinceId": sinceID,
				"userId":  user.ID,
				"host":    host,
			},
		}, &resp)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(resp))
		for _, entry := range resp {
			followerHost := entry.Follower.Host
			if followerHost == "" {
				followerHost = host
			}
			rows = append(rows, []string{
				entry.Follower.Username,
				followerHost,
				followee,
				followeeHost,
			})
		}
		if err := env.Sink.WriteAll(DatasetCrawledFollows, rows); err != nil {
			return err
		}

		if len(resp) < misskeyUserPageSize {
			return nil
		}
		sinceID = resp[len(resp)-1].ID
	}
}

// PostProcess rolls the raw follower edges up into per-instance follow
// counts.
func (m *misskeyTopUserInspector) PostProcess(ctx context.Context, env *Env) error {
	path, err := env.Sink.Path(DatasetCrawledFollows)
	if err != nil {
		return err
	}

	type pair struct {
		source, target string
	}
	counts := make(map[pair]int64)
	err = readDataset(path, func(row map[string]string) error {
		counts[pair{row["follower_instance"], row["followee_instance"]}]++
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading crawled follows: %w", err)
	}

	pairs := make([]pair, 0, len(counts))
	for p := range counts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].source != pairs[j].source {
			return pairs[i].source < pairs[j].source
		}
		return pairs[i].target < pairs[j].target
	})

	for _, p := range pairs {
		relation := model.Relation{Source: p.source, Target: p.target, Weight: counts[p]}
		if err := env.Sink.Write(DatasetFollows, relation.Row()); err != nil {
			return err
		}
	}

	env.Logger.Info("aggregated follow edges",
		"raw_pairs", len(counts),
	)
	return nil
}
