package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentDigest/internal/domain"
)

func TestSettingsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	settings := s.Settings()

	_, ok, err := settings.Get(ctx, SettingMinQuality)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, settings.Set(ctx, SettingMinQuality, "0.8"))
	require.NoError(t, settings.Set(ctx, SettingMinQuality, "0.9"))
	require.NoError(t, settings.Set(ctx, SettingAnalysisType, "trends"))

	got, ok, err := settings.Get(ctx, SettingMinQuality)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.9", got.Value)

	all, err := settings.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, SettingAnalysisType, all[0].Key)

	require.NoError(t, settings.Delete(ctx, SettingAnalysisType))
	all, err = settings.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSettingsValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	settings := s.Settings()

	assert.ErrorIs(t, settings.Set(ctx, "pipeline.unknown", "1"), ErrUnknownSetting)

	tests := []struct {
		key, value string
	}{
		{SettingMinQuality, "1.5"},
		{SettingMinQuality, "high"},
		{SettingMaxContentAge, "yesterday"},
		{SettingMaxContentAge, "-1h"},
		{SettingCollectConcurrency, "-2"},
		{SettingDistributeSocial, "maybe"},
		{SettingAnalysisType, ""},
	}
	for _, tt := range tests {
		assert.Error(t, settings.Set(ctx, tt.key, tt.value), "%s=%q", tt.key, tt.value)
	}

	all, err := settings.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApplyRunOverrides(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	settings := s.Settings()

	base := domain.PipelineRunConfig{
		Sources:           map[domain.SourceType]bool{domain.SourceFeed: true},
		MinQuality:        0.5,
		MaxContentAge:     24 * time.Hour,
		AnalysisType:      "summary",
		DistributeChatOps: true,
	}

	unchanged, err := settings.ApplyRunOverrides(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, base, unchanged)

	require.NoError(t, settings.Set(ctx, SettingMinQuality, "0.75"))
	require.NoError(t, settings.Set(ctx, SettingMaxContentAge, "6h"))
	require.NoError(t, settings.Set(ctx, SettingDistributeChatOps, "false"))
	require.NoError(t, settings.Set(ctx, SourceEnabledSetting(domain.SourceChannel), "true"))
	require.NoError(t, settings.Set(ctx, SourceEnabledSetting(domain.SourceFeed), "false"))

	rc, err := settings.ApplyRunOverrides(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 0.75, rc.MinQuality)
	assert.Equal(t, 6*time.Hour, rc.MaxContentAge)
	assert.Equal(t, "summary", rc.AnalysisType)
	assert.False(t, rc.DistributeChatOps)
	assert.True(t, rc.Enabled(domain.SourceChannel))
	assert.False(t, rc.Enabled(domain.SourceFeed))

	assert.True(t, base.Enabled(domain.SourceFeed), "base config is not mutated")
}

func TestKnownSettingsIncludesSourceToggles(t *testing.T) {
	keys := KnownSettings()
	assert.Contains(t, keys, "sources.social.enabled")
	assert.Contains(t, keys, SettingMinQuality)
	assert.IsIncreasing(t, keys)
}
