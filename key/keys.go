// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Playback - these keys carry the declarative player options read at construct and load time.
const (
	PlayerEngine              = "player.engine"
	PlayerAutoPlay            = "player.autoplay"
	PlayerShowDefaultControls = "player.show_default_controls"
	PlayerUpdateInterval      = "player.update_interval"
	PlayerLoadTimeout         = "player.load_timeout"
	PlayerSeekStep            = "player.seek_step"
)

// Networking - these keys tune the shared HTTP client and the per-player instrumentation.
const (
	NetworkTimeout         = "network.timeout"
	NetworkTLSFingerprint  = "network.tls_fingerprint"
	NetworkMaxSegmentBytes = "network.max_segment_bytes"
	NetworkUserAgent       = "network.user_agent"
)

// HLS engine.
const (
	HLSForwardBuffer = "hls.forward_buffer"
	HLSRetryCount    = "hls.retry_count"
)

// mpv engine.
const (
	MPVBinary = "mpv.binary"
	MPVArgs   = "mpv.args"
)

const (
	DRMLicenseURL = "drm.license_url"
)

// Probe results are cached to avoid refetching manifests on every invocation.
const (
	ProbeCache = "probe.cache"
)

// Playback history - resume positions and recently played sources.
const (
	HistorySave       = "history.save"
	HistoryResume     = "history.resume"
	HistoryRecentSize = "history.recent_size"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the non-TUI application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
