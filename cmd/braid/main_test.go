package main

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hello.lua")
	require.NoError(t, os.WriteFile(file, []byte(`return {greeting = "hello " .. arg.name, n = 1 + 1}`), 0644))

	var out bytes.Buffer
	err := run([]string{"-file", file, "-arg", `{"name":"braid"}`}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, `{"greeting":"hello braid","n":2.0}`+"\n", out.String())
}

func TestRunProcedure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "procedures", "users"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "procedures", "users", "count.lua"), []byte(`
		create_vertex("user", nil)
		return #get_vertex_range("", 100)
	`), 0644))
	cfg := filepath.Join(dir, "braid.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("datastore:\n  type: badger\n  path: "+filepath.Join(dir, "data")+"\nprocedures: procedures\n"), 0644))

	var out bytes.Buffer
	err := run([]string{"-c", cfg, "-procedure", "users.count", "-account", "5f3a7d3c-1b2e-4c4d-8e9f-0a1b2c3d4e5f"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "1.0\n", out.String())

	out.Reset()
	err = run([]string{"-c", cfg, "-procedure", "users.count"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "2.0\n", out.String())
}

func TestRunError(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run([]string{}, nil, &out))
	assert.Error(t, run([]string{"-file", "a.lua", "-procedure", "a"}, nil, &out))
	assert.Error(t, run([]string{"-file", "a.lua", "-account", "nope"}, nil, &out))
	assert.Error(t, run([]string{"-file", "a.lua", "-arg", "{"}, nil, &out))
	assert.Error(t, run([]string{"-procedure", "a"}, nil, &out))
	assert.Error(t, run([]string{"-serve", "-procedure", "a"}, nil, &out))
	assert.Error(t, run([]string{"-serve"}, strings.NewReader(""), &out))

	file := filepath.Join(t.TempDir(), "bad.lua")
	require.NoError(t, os.WriteFile(file, []byte(`return +`), 0644))
	err := run([]string{"-file", file}, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Empty(t, out.String())
}

func TestServe(t *testing.T) {
	dir := t.TempDir()
	procedures := filepath.Join(dir, "procedures")
	require.NoError(t, os.MkdirAll(procedures, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(procedures, "echo.lua"), []byte(`return arg`), 0644))
	cfg := filepath.Join(dir, "braid.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("procedures: procedures\n"), 0644))

	stdin := strings.NewReader(`{"procedure": "echo", "arg": {"name": "braid"}}

{"procedure": "missing"}
{"procedure": "echo", "account": "nope"}
not json
`)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-c", cfg, "-serve"}, stdin, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"result":{"name":"braid"}}`, lines[0])
	assert.Contains(t, lines[1], "procedure not found")
	assert.Contains(t, lines[2], "invalid account id nope")
	assert.Contains(t, lines[3], "invalid request")
}

func TestServeWatch(t *testing.T) {
	dir := t.TempDir()
	procedures := filepath.Join(dir, "procedures")
	require.NoError(t, os.MkdirAll(procedures, 0755))
	file := filepath.Join(procedures, "version.lua")
	require.NoError(t, os.WriteFile(file, []byte(`return "v1"`), 0644))
	cfg := filepath.Join(dir, "braid.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("procedures: procedures\nwatch: true\n"), 0644))

	stdinReader, stdin := io.Pipe()
	stdoutReader, stdout := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- run([]string{"-c", cfg, "-serve"}, stdinReader, stdout)
		stdout.Close()
	}()

	responses := bufio.NewReader(stdoutReader)
	ask := func() (string, error) {
		if _, err := io.WriteString(stdin, `{"procedure": "version"}`+"\n"); err != nil {
			return "", err
		}
		line, err := responses.ReadString('\n')
		return strings.TrimSpace(line), err
	}

	res, err := ask()
	require.NoError(t, err)
	assert.Equal(t, `{"result":"v1"}`, res)

	require.NoError(t, os.WriteFile(file, []byte(`return "v2"`), 0644))
	assert.Eventually(t, func() bool {
		res, err := ask()
		return err == nil && res == `{"result":"v2"}`
	}, 5*time.Second, 50*time.Millisecond)

	stdin.Close()
	require.NoError(t, <-done)
}
