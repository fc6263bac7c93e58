package player

import (
	"time"

	"github.com/playbridge/playbridge/key"
	"github.com/spf13/viper"
)

// DefaultUpdateInterval is used when Options.UpdateIntervalInSeconds is not positive.
const DefaultUpdateInterval = time.Second

// Options is the declarative configuration an adapter reads when it is created and
// again at every load.
type Options struct {
	AutoPlay                bool    `json:"autoPlay"`
	ShowDefaultControls     bool    `json:"showDefaultControls"`
	UpdateIntervalInSeconds float64 `json:"updateIntervalInSeconds"`
}

// UpdateInterval converts UpdateIntervalInSeconds to a duration.
func (o Options) UpdateInterval() time.Duration {
	if o.UpdateIntervalInSeconds <= 0 {
		return DefaultUpdateInterval
	}
	return time.Duration(o.UpdateIntervalInSeconds * float64(time.Second))
}

// OptionsFromConfig reads the player.* configuration keys.
func OptionsFromConfig() Options {
	return Options{
		AutoPlay:                viper.GetBool(key.PlayerAutoPlay),
		ShowDefaultControls:     viper.GetBool(key.PlayerShowDefaultControls),
		UpdateIntervalInSeconds: viper.GetFloat64(key.PlayerUpdateInterval),
	}
}
