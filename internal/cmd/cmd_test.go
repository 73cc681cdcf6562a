/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/internal/libinfo"
	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/testutil"
	"github.com/acronis/go-throttlekit/throttling"
)

const testRules = `
throttling.defaultLimit=100
throttling.crm.setActivityExt=3/15
throttling.*.getUser=50
`

func writeTestConfig(t *testing.T, rules string) string {
	t.Helper()
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.properties")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o600))
	cfgPath := filepath.Join(dir, "throttled.yaml")
	cfgData := `
log:
  level: error
server:
  address: 127.0.0.1:0
throttling:
  rulesFile: ` + rulesPath + `
  counter:
    alg: sliding_log
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgData), 0o600))
	return cfgPath
}

func executeCommand(args ...string) (string, error) {
	rootCmd := NewRootCommand()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, testRules)

	out, err := executeCommand("rules", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Source system")
	require.Contains(t, out, "setActivityExt")
	require.Contains(t, out, "getUser")
	require.Contains(t, out, "3 rules")
	require.NotContains(t, out, "disabled")
	require.Less(t, strings.Index(out, "setActivityExt"), strings.Index(out, "getUser"))

	t.Setenv("THROTTLED_THROTTLING_DISABLED", "true")
	out, err = executeCommand("rules", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "3 rules, throttling is disabled")
}

func TestRulesCommand_Filter(t *testing.T) {
	cfgPath := writeTestConfig(t, testRules)

	out, err := executeCommand("rules", "--config", cfgPath, "--filter", "crm.*")
	require.NoError(t, err)
	require.Contains(t, out, "setActivityExt")
	require.NotContains(t, out, "getUser")
	require.Contains(t, out, "1 rules")

	out, err = executeCommand("rules", "--config", cfgPath, "--filter", "crm.*", "--filter", "*.getUser")
	require.NoError(t, err)
	require.Contains(t, out, "setActivityExt")
	require.Contains(t, out, "getUser")
	require.Contains(t, out, "2 rules")

	out, err = executeCommand("rules", "--config", cfgPath, "--filter", "erp.*")
	require.NoError(t, err)
	require.Contains(t, out, "0 rules")
}

func TestAppConfig_ThrottlingConfigLoader(t *testing.T) {
	cfgPath := writeTestConfig(t, testRules)
	appCfg, err := LoadAppConfig(cfgPath)
	require.NoError(t, err)
	require.False(t, appCfg.Throttling.Disabled)

	cfgData, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	cfgData = []byte(strings.Replace(string(cfgData), "throttling:\n", "throttling:\n  disabled: true\n", 1))
	require.NoError(t, os.WriteFile(cfgPath, cfgData, 0o600))

	throttlingCfg, err := appCfg.ThrottlingConfigLoader()()
	require.NoError(t, err)
	require.True(t, throttlingCfg.Disabled)
	require.Equal(t, appCfg.Throttling.RulesFile, throttlingCfg.RulesFile)

	require.NoError(t, os.Remove(cfgPath))
	_, err = appCfg.ThrottlingConfigLoader()()
	require.Error(t, err)
}

func TestRenderRules_KeepsHeaderAndFooterCase(t *testing.T) {
	rules := []throttling.Rule{{Scope: throttling.NewScope("crm", "*"), Props: throttling.Props{Limit: 10, Interval: 60}}}

	out := renderRules(rules, true)
	require.Contains(t, out, "Interval (sec)")
	require.Contains(t, out, "1 rules, throttling is disabled")
	require.NotContains(t, out, "SOURCE SYSTEM")
	require.NotContains(t, out, "RULES")
}

func TestResolveCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, testRules)

	out, err := executeCommand("resolve", "--config", cfgPath, "crm", "setActivityExt")
	require.NoError(t, err)
	require.Contains(t, out, "Rule for crm.setActivityExt:")
	require.Contains(t, out, "15")

	out, err = executeCommand("resolve", "--config", cfgPath, "erp", "getUser")
	require.NoError(t, err)
	require.Contains(t, out, "Rule for erp.getUser:")
	require.Contains(t, out, "50")

	out, err = executeCommand("resolve", "--config", cfgPath, "*", "unknown")
	require.NoError(t, err)
	require.Contains(t, out, "Rule for *.unknown:")
	require.Contains(t, out, "100")

	_, err = executeCommand("resolve", "--config", cfgPath, "crm")
	require.Error(t, err)

	t.Setenv("THROTTLED_THROTTLING_DISABLED", "true")
	out, err = executeCommand("resolve", "--config", cfgPath, "crm", "setActivityExt")
	require.NoError(t, err)
	require.Equal(t, "No throttling rule applies to crm.setActivityExt, throttling is disabled.\n", out)
}

func TestCommands_InvalidConfiguration(t *testing.T) {
	cfgPath := writeTestConfig(t, "throttling.crm.v2.setActivityExt=5\n")
	for _, args := range [][]string{
		{"rules", "--config", cfgPath},
		{"resolve", "--config", cfgPath, "crm", "setActivityExt"},
		{"serve", "--config", cfgPath},
	} {
		_, err := executeCommand(args...)
		require.ErrorIs(t, err, throttling.ErrConfig, "args: %v", args)
	}

	_, err := executeCommand("rules", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load configuration")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand("version")
	require.NoError(t, err)
	require.Equal(t, "throttled "+libinfo.GetVersion()+"\n", out)
}

// startTestDaemon runs the daemon on a free port until the test ends.
func startTestDaemon(t *testing.T, cfgPath string) (addr string, stop func() error) {
	t.Helper()
	appCfg, err := LoadAppConfig(cfgPath)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = listener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- runServe(ctx, appCfg, logtest.NewLogger(), listener)
	}()
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))

	stopped := false
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case stopErr := <-serveErr:
			return stopErr
		case <-time.After(5 * time.Second):
			return errors.New("daemon hasn't stopped")
		}
	}
	t.Cleanup(func() { _ = stop() })
	return addr, stop
}

func TestThrottleCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, testRules)
	addr, _ := startTestDaemon(t, cfgPath)
	daemonURL := "http://" + addr

	for i := 0; i < 3; i++ {
		out, err := executeCommand("throttle", "--config", cfgPath, "--url", daemonURL, "--wait", "3s",
			"crm", "setActivityExt")
		require.NoError(t, err)
		require.Equal(t, "Request of crm.setActivityExt is allowed.\n", out)
	}

	out, err := executeCommand("throttle", "--config", cfgPath, "--url", daemonURL, "crm", "setActivityExt")
	require.ErrorIs(t, err, throttling.ErrExceeded)
	require.Contains(t, out, "Request of crm.setActivityExt is rejected, retry after 15 sec.")

	_, err = executeCommand("throttle", "--config", cfgPath, "--url", daemonURL, "*", "*")
	require.ErrorIs(t, err, throttling.ErrInvalidScope)
}

func TestRunServe(t *testing.T) {
	addr, stop := startTestDaemon(t, writeTestConfig(t, testRules))

	doRequest := func(method, path, body string) (int, string) {
		req, reqErr := http.NewRequest(method, "http://"+addr+path, strings.NewReader(body))
		require.NoError(t, reqErr)
		req.Header.Set("Content-Type", "application/json")
		resp, reqErr := http.DefaultClient.Do(req)
		require.NoError(t, reqErr)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		respBody, reqErr := io.ReadAll(resp.Body)
		require.NoError(t, reqErr)
		return resp.StatusCode, string(respBody)
	}

	const throttleBody = `{"sourceSystem":"crm","serviceName":"setActivityExt"}`
	for i := 0; i < 3; i++ {
		code, _ := doRequest(http.MethodPost, "/api/throttling/v1/throttle", throttleBody)
		require.Equal(t, http.StatusNoContent, code)
	}
	code, body := doRequest(http.MethodPost, "/api/throttling/v1/throttle", throttleBody)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Contains(t, body, `"code":"tooManyRequests"`)

	code, body = doRequest(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"components":{"throttling":true}}`, body)

	code, body = doRequest(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `throttled_throttling_checks_total{outcome="rejected"`)
	require.Contains(t, body, `throttled_restapi_response_errors_total{code="tooManyRequests",domain="Throttling"`)

	require.NoError(t, stop())
}
