package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/serviciomed/serviciomed/internal/auth"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("SERVER_ENVIRONMENT", "test")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "serviciomed.db"))
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("STORAGE_LOCAL_DIR", filepath.Join(dir, "docs"))
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "error")
	auth.Cost = bcrypt.MinCost
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	dir := testEnv(t)
	file := filepath.Join(dir, "out.pdf")

	out, err := run(t, "", "render", "-o", file, "--record", "ISC01", "nombre=Ana", "tipo_sangre=O+")
	require.NoError(t, err)
	assert.Contains(t, out, "(4 fields)")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	_, err = run(t, "", "render", "-o", file, "sin-valor")
	require.Error(t, err)
}

func TestRegisterAndProgramsCommands(t *testing.T) {
	testEnv(t)
	const isc = "Ingeniería en Sistemas Computacionales"

	out, err := run(t, "pw\n", "register", "--name", "Ana", "--program", isc, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "registered Ana: ISC01")

	_, err = run(t, "pw\n", "register", "--name", "Ana", "--program", isc, "--password-stdin")
	require.Error(t, err)

	out, err = run(t, "", "programs")
	require.NoError(t, err)
	assert.Contains(t, out, "ISC01")
	assert.Contains(t, out, "Licenciatura en Gastronomía")

	out, err = run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")
}

func TestPromptPassword_Terminal(t *testing.T) {
	orig := readPassword
	defer func() { readPassword = orig }()
	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }

	var out bytes.Buffer
	pw, err := promptPassword(strings.NewReader(""), &out, false)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Contains(t, out.String(), "Password:")
}

func TestParseFieldArgs(t *testing.T) {
	fields, err := parseFieldArgs([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "x=y", fields[1].Value)
	assert.Equal(t, "", fields[2].Value)

	_, err = parseFieldArgs([]string{"=1"})
	require.Error(t, err)
}
