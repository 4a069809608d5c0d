package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/repotaskrun/internal/testutil"
	"github.com/stretchr/testify/require"
)

// WriteAgentConfig writes a minimal agent configuration whose base
// directories live under a fresh temporary directory, followed by extra.
// It returns the config file path and the temporary root.
func WriteAgentConfig(t *testing.T, extra string) (string, string) {
	t.Helper()

	root := t.TempDir()
	body := fmt.Sprintf(`
repository {
  url           = "https://git.example.com/ops/tasks.git"
  poll_interval = "1s"
}

paths {
  system_dir = %q
  user_dir   = %q
}

script ".ps1" {
  command = ["pwsh", "-File"]
}
%s`, filepath.Join(root, "system"), filepath.Join(root, "user"), extra)

	path := filepath.Join(root, "agent.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, root
}

// SetupAppTest creates a new App for system testing with debug logging
// captured in the returned buffer.
func SetupAppTest(t *testing.T, appConfig *Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp, err := NewApp(logBuffer, appConfig, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("REPOTASKRUN_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
