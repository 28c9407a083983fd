package config

import "github.com/jpalmerr/creatorwatch"

// Environment variables read by [Config.ApplyEnv].
const (
	EnvCreators   = "BILI_UP_IDS"
	EnvStateFile  = "BILI_STATE_FILE"
	EnvProxy      = "BILI_PROXY"
	EnvWebhookURL = "BILI_WEBHOOK_URL"
)

// ApplyEnv overlays the BILI_* environment variables on c and re-validates.
// Set variables override the file; unset ones leave it alone. lookup is
// usually os.LookupEnv.
//
//   - BILI_UP_IDS replaces the creator list (comma-separated)
//   - BILI_STATE_FILE replaces state.path
//   - BILI_PROXY replaces http.proxy
//   - BILI_WEBHOOK_URL adds a webhook sink unless one already targets it
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCreators); ok {
		c.Creators = CreatorList(creatorwatch.ParseCreatorIDs(v))
	}
	if v, ok := lookup(EnvStateFile); ok && v != "" {
		c.State.Path = v
	}
	if v, ok := lookup(EnvProxy); ok {
		c.HTTP.Proxy = v
	}
	if v, ok := lookup(EnvWebhookURL); ok && v != "" {
		present := false
		for _, n := range c.Notify {
			if n.Type == NotifyWebhook && n.URL == v {
				present = true
				break
			}
		}
		if !present {
			c.Notify = append(c.Notify, NotifyConfig{Type: NotifyWebhook, URL: v, Retries: 3})
		}
	}
	return c.Validate()
}
