package main

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsLastIsCommand(t *testing.T) {
	paths, exec, err := parseArgs([]string{"src", "main.go", "go build ./..."}, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "main.go"}, paths)
	assert.Equal(t, "go build ./...", exec)
}

func TestParseArgsDash(t *testing.T) {
	paths, exec, err := parseArgs([]string{"/path/to/file", "/path/to/dir", "echo", "it's changed"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/path/to/file", "/path/to/dir"}, paths)
	assert.Equal(t, `echo 'it'\''s changed'`, exec)
}

func TestParseArgsUsageErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		args []string
		dash int
		msg  string
	}{
		"nothing":           {nil, -1, "No paths to watch"},
		"command only":      {[]string{"echo changed"}, -1, "No paths to watch"},
		"blank command":     {[]string{"dir", "  "}, -1, "No action to perform"},
		"nothing after --":  {[]string{"dir"}, 1, "No action to perform"},
		"nothing before --": {[]string{"echo"}, 0, "No paths to watch"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseArgs(tc.args, tc.dash)
			require.Error(t, err)
			assert.EqualError(t, err, tc.msg)
			var uerr usageError
			assert.True(t, errors.As(err, &uerr))
		})
	}
}

func executeRoot(args ...string) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootCommandUsage(t *testing.T) {
	var uerr usageError
	assert.True(t, errors.As(executeRoot("echo changed"), &uerr))
	assert.True(t, errors.As(executeRoot(), &uerr))
}

func TestRootCommandMissingPath(t *testing.T) {
	err := executeRoot("/definitely/not/here", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot get file info")
	var uerr usageError
	assert.False(t, errors.As(err, &uerr))
}
