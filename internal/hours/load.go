package hours

import (
	"context"
	"encoding/json"
	"fmt"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load replaces the oracle configuration from a viper instance. Keys:
// weekly.<weekday> (list of {start,end}), holidays (list of ISO dates),
// location (IANA timezone). Missing keys keep the defaults.
func (o *Oracle) Load(v *viper.Viper) error {
	config := DefaultConfig()
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("unmarshal business hours: %w", err)
	}
	return o.Replace(config)
}

// LoadFromRedis replaces the oracle configuration from a JSON payload stored
// under key. The practice dashboard writes this key when the front desk
// edits opening times.
func (o *Oracle) LoadFromRedis(ctx context.Context, client *redis.Client, key string) error {
	payload, err := client.Get(ctx, key).Result()
	if err != nil {
		return &triagerr.ServiceUnavailableError{Service: "hours config store", Err: err}
	}
	var config Config
	if err := json.Unmarshal([]byte(payload), &config); err != nil {
		return fmt.Errorf("decode business hours from %q: %w", key, err)
	}
	return o.Replace(config)
}

// ExportYAML renders the current configuration, e.g. for a config file seed.
func (o *Oracle) ExportYAML() ([]byte, error) {
	return yaml.Marshal(o.Snapshot())
}
