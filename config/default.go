// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.App + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

// typeName returns the string representation of the field's underlying value type.
func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	case []int:
		return "[]int"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc}
		EnvExposed = append(EnvExposed, k)
	}

	register(key.PlayerEngine, "hls", "Playback engine to drive.\nAvailable options are: hls, mpv")
	register(key.PlayerAutoPlay, true, "Start playback as soon as a source is loaded")
	register(key.PlayerShowDefaultControls, true, "Show the engine's built-in playback controls")
	register(key.PlayerUpdateInterval, 1.0, "Seconds between position samples while playing")
	register(key.PlayerLoadTimeout, "30s", "Give up on a load that has not become ready after this long")
	register(key.PlayerSeekStep, "10s", "Step used by forward and backward seeks")
	register(key.NetworkTimeout, "1m", "Timeout for a single manifest or segment request")
	register(key.NetworkTLSFingerprint, false, "Use a browser TLS fingerprint for HTTPS requests")
	register(key.NetworkMaxSegmentBytes, 64<<20, "Largest response body buffered in memory before it is streamed instead")
	register(key.NetworkUserAgent, constant.UserAgent, "User-Agent header sent with every request")
	register(key.HLSForwardBuffer, "2m", "How far ahead of the playhead the hls engine buffers")
	register(key.HLSRetryCount, 3, "Attempts per segment before the hls engine gives up")
	register(key.MPVBinary, "mpv", "Path to the mpv executable")
	register(key.MPVArgs, []string{}, "Extra arguments passed to mpv")
	register(key.DRMLicenseURL, "https://license.uat.widevine.com/cenc/getcontentkey/widevine_test", "License server used for protected streams")
	register(key.ProbeCache, true, "Cache probe results for a day")
	register(key.HistorySave, true, "Remember where playback of a source stopped")
	register(key.HistoryResume, false, "Resume sources from where they stopped")
	register(key.HistoryRecentSize, 50, "How many recently played sources to remember for completion")
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, kaomoji, plain, squares, nerd (nerd-font required)")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Enable automatic version check")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"bold":     style.Bold,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
