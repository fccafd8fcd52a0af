package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "profilectl-test-secret-at-least-32-bytes"

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "profiles.db") + "\n" +
		"session:\n  jwt-secret: " + testSecret + "\n" +
		"default-free-questions: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestProfilectl_Lifecycle(t *testing.T) {
	configPath := writeConfig(t)

	out, err := execute(t, configPath, "create", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "7 free questions")

	_, err = execute(t, configPath, "set-tier", "user-1", "pending")
	require.NoError(t, err)
	_, err = execute(t, configPath, "set-free-questions", "user-1", "3")
	require.NoError(t, err)
	_, err = execute(t, configPath, "set-key", "user-1", "groq", "gsk-0123456789")
	require.NoError(t, err)

	out, err = execute(t, configPath, "show", "--json", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"subscribe": "pending"`)
	assert.Contains(t, out, `"free_questions": 3`)
	assert.Contains(t, out, `"groq": "gsk-***89"`)
}

func TestProfilectl_Errors(t *testing.T) {
	configPath := writeConfig(t)

	_, err := execute(t, configPath, "set-free-questions", "user-1", "many")
	assert.Error(t, err)
	_, err = execute(t, configPath, "show", "ghost")
	assert.Error(t, err)
	_, err = execute(t, configPath, "set-tier", "user-1")
	assert.Error(t, err)
}

func TestProfilectl_Token(t *testing.T) {
	configPath := writeConfig(t)

	out, err := execute(t, configPath, "token", "user-9")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	resolver := session.NewResolver(config.SessionConfig{JWTSecret: testSecret})
	claims, err := resolver.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
}
