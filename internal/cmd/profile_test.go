package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/multichat/chatproxy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfiles(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateProfile(t *testing.T) {
	ctx := context.Background()
	profiles := newProfiles(t)
	var out bytes.Buffer

	p, err := CreateProfile(ctx, &out, profiles, " user-1 ", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "user-1", p.UserID)
	assert.Contains(t, out.String(), "10 free questions")

	stored, err := profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.TierNone, stored.Tier)
	assert.Equal(t, 10, stored.FreeQuestions)

	_, err = CreateProfile(ctx, &out, profiles, "user-1", 3)
	assert.ErrorContains(t, err, "already exists")

	_, err = CreateProfile(ctx, &out, profiles, "", 3)
	assert.Error(t, err)
	_, err = CreateProfile(ctx, &out, profiles, "user-2", -1)
	assert.Error(t, err)
}

func TestSetTier(t *testing.T) {
	ctx := context.Background()
	profiles := newProfiles(t)
	var out bytes.Buffer
	_, err := CreateProfile(ctx, &out, profiles, "user-1", 1)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, SetTier(ctx, &out, profiles, "user-1", "active"))
	assert.Equal(t, "user-1: none -> active\n", out.String())

	p, err := profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.TierActive, p.Tier)

	assert.Error(t, SetTier(ctx, &out, profiles, "user-1", "gold"))
	assert.ErrorIs(t, SetTier(ctx, &out, profiles, "ghost", "pending"), store.ErrProfileNotFound)
}

func TestSetFreeQuestions(t *testing.T) {
	ctx := context.Background()
	profiles := newProfiles(t)
	var out bytes.Buffer
	_, err := CreateProfile(ctx, &out, profiles, "user-1", 1)
	require.NoError(t, err)

	require.NoError(t, SetFreeQuestions(ctx, &out, profiles, "user-1", 25))
	p, err := profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.FreeQuestions)

	assert.Error(t, SetFreeQuestions(ctx, &out, profiles, "user-1", -2))
	assert.ErrorIs(t, SetFreeQuestions(ctx, &out, profiles, "ghost", 1), store.ErrProfileNotFound)
}

func TestSetAPIKeyAndShow(t *testing.T) {
	ctx := context.Background()
	profiles := newProfiles(t)
	var out bytes.Buffer
	_, err := CreateProfile(ctx, &out, profiles, "user-1", 1)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, SetAPIKey(ctx, &out, profiles, "user-1", "OpenAI", "sk-proj-abcdef1234"))
	assert.Equal(t, "user-1: stored openai key sk-p***34\n", out.String())
	assert.NotContains(t, out.String(), "abcdef")

	out.Reset()
	require.NoError(t, ShowProfile(ctx, &out, profiles, "user-1", true))
	var info ProfileInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "none", info.Tier)
	assert.Equal(t, map[string]string{"openai": "sk-p***34"}, info.APIKeys)

	out.Reset()
	require.NoError(t, ShowProfile(ctx, &out, profiles, "user-1", false))
	assert.Contains(t, out.String(), "user-1")
	assert.Contains(t, out.String(), "openai")

	out.Reset()
	require.NoError(t, SetAPIKey(ctx, &out, profiles, "user-1", "openai", ""))
	p, err := profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, p.APIKey("openai"))

	assert.Error(t, SetAPIKey(ctx, &out, profiles, "user-1", " ", "k"))
	assert.Error(t, ShowProfile(ctx, &out, profiles, "ghost", false))
}
