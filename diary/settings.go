package diary

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultModel is used for both generation steps unless overridden.
const DefaultModel = "gpt-4o-mini"

// DefaultTimezone decides which calendar day "today" is.
const DefaultTimezone = "Asia/Seoul"

// DefaultTimeoutSeconds bounds each completion call.
const DefaultTimeoutSeconds = 60

// Settings is the optional TOML configuration shared by the commands.
type Settings struct {
	NoiseMarkers   []string `toml:"noise_markers"`
	MaxUtterances  int      `toml:"max_utterances"`
	KeepUnmatched  bool     `toml:"keep_unmatched"`
	SummaryModel   string   `toml:"summary_model"`
	DiaryModel     string   `toml:"diary_model"`
	Timezone       string   `toml:"timezone"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		NoiseMarkers:   append([]string(nil), DefaultNoiseMarkers...),
		MaxUtterances:  DefaultMaxUtterances,
		SummaryModel:   DefaultModel,
		DiaryModel:     DefaultModel,
		Timezone:       DefaultTimezone,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// LoadSettings decodes path over base. Keys absent from the file keep base's values.
func LoadSettings(path string, base Settings) (Settings, error) {
	s := base
	s.NoiseMarkers = append([]string(nil), base.NoiseMarkers...)
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, fmt.Errorf("LoadSettings: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Settings{}, fmt.Errorf("LoadSettings: unknown keys in %s: %v", path, undec)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("LoadSettings: %w", err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.MaxUtterances < 0 {
		return errors.New("max_utterances must be >= 0")
	}
	if s.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be >= 0")
	}
	if _, err := ResolveLocation(s.Timezone); err != nil {
		return err
	}
	return nil
}

// ExtractOptions converts the extraction-related settings.
func (s Settings) ExtractOptions() ExtractOptions {
	return ExtractOptions{
		NoiseMarkers:  s.NoiseMarkers,
		MaxUtterances: s.MaxUtterances,
		KeepUnmatched: s.KeepUnmatched,
	}
}

func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ResolveLocation loads an IANA zone. "" means DefaultTimezone, and "Local" the host zone.
// When the host has no zoneinfo, DefaultTimezone falls back to a fixed UTC+9.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return time.FixedZone("KST", 9*60*60), nil
		}
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// LoadDotEnv loads environment files in order without overriding variables that are already
// set. Missing files are skipped. With no paths it loads .env.local then .env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("LoadDotEnv: %s: %w", p, err)
		}
	}
	return nil
}
