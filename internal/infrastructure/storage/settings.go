package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

var _ ports.SettingsStore = (*SettingsStore)(nil)

// Runtime setting keys that overlay the static pipeline configuration.
const (
	SettingMinQuality         = "pipeline.min_quality"
	SettingMaxContentAge      = "pipeline.max_content_age"
	SettingAnalysisType       = "pipeline.analysis_type"
	SettingCollectConcurrency = "pipeline.collect_concurrency"
	SettingDistributeSocial   = "distribution.social"
	SettingDistributeChatOps  = "distribution.chatops"
)

// ErrUnknownSetting is returned for keys outside the supported set.
var ErrUnknownSetting = errors.New("storage: unknown setting")

type settingKind int

const (
	kindString settingKind = iota
	kindBool
	kindFloat
	kindInt
	kindDuration
)

var knownSettings = map[string]settingKind{
	SettingMinQuality:         kindFloat,
	SettingMaxContentAge:      kindDuration,
	SettingAnalysisType:       kindString,
	SettingCollectConcurrency: kindInt,
	SettingDistributeSocial:   kindBool,
	SettingDistributeChatOps:  kindBool,
}

func init() {
	for _, t := range domain.SourceTypes {
		knownSettings[SourceEnabledSetting(t)] = kindBool
	}
}

// SourceEnabledSetting names the toggle for one source type.
func SourceEnabledSetting(t domain.SourceType) string {
	return "sources." + string(t) + ".enabled"
}

// KnownSettings lists the supported keys in lexical order.
func KnownSettings() []string {
	keys := make([]string, 0, len(knownSettings))
	for k := range knownSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateSetting checks that value parses as the type key expects.
func ValidateSetting(key, value string) error {
	kind, ok := knownSettings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	var err error
	switch kind {
	case kindBool:
		_, err = strconv.ParseBool(value)
	case kindFloat:
		var f float64
		if f, err = strconv.ParseFloat(value, 64); err == nil && (f < 0 || f > 1) {
			err = fmt.Errorf("must be within [0,1]")
		}
	case kindInt:
		var n int
		if n, err = strconv.Atoi(value); err == nil && n < 0 {
			err = fmt.Errorf("must not be negative")
		}
	case kindDuration:
		var d time.Duration
		if d, err = time.ParseDuration(value); err == nil && d < 0 {
			err = fmt.Errorf("must not be negative")
		}
	case kindString:
		if value == "" {
			err = fmt.Errorf("must not be empty")
		}
	}
	if err != nil {
		return fmt.Errorf("setting %s=%q: %w", key, value, err)
	}
	return nil
}

// SettingsStore keeps runtime overrides in the settings table.
type SettingsStore struct {
	store *Store
}

// Settings returns the settings store backed by s.
func (s *Store) Settings() *SettingsStore {
	return &SettingsStore{store: s}
}

// Get returns the setting stored under key.
func (ss *SettingsStore) Get(ctx context.Context, key string) (domain.Setting, bool, error) {
	row, err := ss.store.queryRow(ctx, ss.store.builder.
		Select("setting_key", "setting_value", "updated_at").
		From("settings").
		Where(sq.Eq{"setting_key": key}))
	if err != nil {
		return domain.Setting{}, false, err
	}

	var (
		setting domain.Setting
		updated int64
	)
	if err := row.Scan(&setting.Key, &setting.Value, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Setting{}, false, nil
		}
		return domain.Setting{}, false, fmt.Errorf("read setting %s: %w", key, err)
	}
	setting.UpdatedAt = fromNanos(updated)
	return setting, true, nil
}

// Set validates and upserts a setting.
func (ss *SettingsStore) Set(ctx context.Context, key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	_, err := ss.store.exec(ctx, ss.store.builder.
		Insert("settings").
		Columns("setting_key", "setting_value", "updated_at").
		Values(key, value, toNanos(ss.store.now())).
		Suffix("ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value, updated_at = excluded.updated_at"))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a setting so the static configuration applies again.
func (ss *SettingsStore) Delete(ctx context.Context, key string) error {
	if _, err := ss.store.exec(ctx, ss.store.builder.Delete("settings").Where(sq.Eq{"setting_key": key})); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// List returns all settings ordered by key.
func (ss *SettingsStore) List(ctx context.Context) ([]domain.Setting, error) {
	rows, err := ss.store.query(ctx, ss.store.builder.
		Select("setting_key", "setting_value", "updated_at").
		From("settings").
		OrderBy("setting_key"))
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []domain.Setting
	for rows.Next() {
		var (
			setting domain.Setting
			updated int64
		)
		if err := rows.Scan(&setting.Key, &setting.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		setting.UpdatedAt = fromNanos(updated)
		out = append(out, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// String returns the stored value or def when unset.
func (ss *SettingsStore) String(ctx context.Context, key, def string) (string, error) {
	s, ok, err := ss.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return s.Value, nil
}

// Bool returns the stored boolean or def when unset.
func (ss *SettingsStore) Bool(ctx context.Context, key string, def bool) (bool, error) {
	s, ok, err := ss.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.ParseBool(s.Value)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// Float returns the stored float or def when unset.
func (ss *SettingsStore) Float(ctx context.Context, key string, def float64) (float64, error) {
	s, ok, err := ss.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.ParseFloat(s.Value, 64)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// Int returns the stored integer or def when unset.
func (ss *SettingsStore) Int(ctx context.Context, key string, def int) (int, error) {
	s, ok, err := ss.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.Atoi(s.Value)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// Duration returns the stored duration or def when unset.
func (ss *SettingsStore) Duration(ctx context.Context, key string, def time.Duration) (time.Duration, error) {
	s, ok, err := ss.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := time.ParseDuration(s.Value)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// ApplyRunOverrides overlays stored settings on base. base is not modified.
// The first unreadable setting aborts the overlay and base is returned unchanged.
func (ss *SettingsStore) ApplyRunOverrides(ctx context.Context, base domain.PipelineRunConfig) (domain.PipelineRunConfig, error) {
	rc := base.Clone()
	var err error

	if rc.MinQuality, err = ss.Float(ctx, SettingMinQuality, rc.MinQuality); err != nil {
		return base, err
	}
	if rc.MaxContentAge, err = ss.Duration(ctx, SettingMaxContentAge, rc.MaxContentAge); err != nil {
		return base, err
	}
	if rc.AnalysisType, err = ss.String(ctx, SettingAnalysisType, rc.AnalysisType); err != nil {
		return base, err
	}
	if rc.CollectConcurrency, err = ss.Int(ctx, SettingCollectConcurrency, rc.CollectConcurrency); err != nil {
		return base, err
	}
	if rc.DistributeSocial, err = ss.Bool(ctx, SettingDistributeSocial, rc.DistributeSocial); err != nil {
		return base, err
	}
	if rc.DistributeChatOps, err = ss.Bool(ctx, SettingDistributeChatOps, rc.DistributeChatOps); err != nil {
		return base, err
	}
	for _, t := range domain.SourceTypes {
		enabled, err := ss.Bool(ctx, SourceEnabledSetting(t), rc.Sources[t])
		if err != nil {
			return base, err
		}
		if enabled != rc.Sources[t] {
			rc.Sources[t] = enabled
		}
	}
	return rc, nil
}
