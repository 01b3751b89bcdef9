package collect

import "strings"

// SiteInfo describes a site for which a gateway route should be generated.
type SiteInfo struct {
	Type      string `json:"type"` // generic, reddit, twitter, youtube or github
	URL       string `json:"url,omitempty"`
	Subreddit string `json:"subreddit,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Username  string `json:"username,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Repo      string `json:"repo,omitempty"`
}

// GenerateRoute builds the gateway route for a site. Unknown types yield "".
func GenerateRoute(info SiteInfo) string {
	switch strings.ToLower(info.Type) {
	case "generic":
		return "rsshub/radar?url=" + info.URL
	case "reddit":
		if info.Sort != "" {
			return "reddit/r/" + info.Subreddit + "/" + info.Sort
		}
		return "reddit/r/" + info.Subreddit
	case "twitter":
		return "twitter/user/" + info.Username
	case "youtube":
		return "youtube/channel/" + info.Channel
	case "github":
		if info.Repo != "" {
			return "github/repos/" + info.Username + "/" + info.Repo + "/releases"
		}
		return "github/repos/" + info.Username
	}
	return ""
}
