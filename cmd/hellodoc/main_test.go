package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dropDatabas3/hellodoc/config"
	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/internal/secretbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhere(t *testing.T) {
	f, err := parseWhere("age >= 30")
	require.NoError(t, err)
	assert.Equal(t, docstore.Where("age", docstore.OpGte, float64(30)), f)

	f, err = parseWhere(`tags array-contains-any ["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, f.Value)

	f, err = parseWhere("name == Ana María")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", f.Value)

	_, err = parseWhere("age >=")
	assert.Error(t, err)
	_, err = parseWhere("age ~ 3")
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	o, err := parseOrder("age:desc")
	require.NoError(t, err)
	assert.Equal(t, docstore.OrderBy("age", docstore.Desc), o)

	o, err = parseOrder("name")
	require.NoError(t, err)
	assert.Equal(t, docstore.Asc, o.Dir)

	_, err = parseOrder("name:sideways")
	assert.Error(t, err)
}

func TestParseConstraints(t *testing.T) {
	cs, err := parseConstraints([]string{"a == 1"}, []string{"b:desc"}, 5)
	require.NoError(t, err)
	q := docstore.Build(cs...)
	assert.Len(t, q.Filters, 1)
	assert.Len(t, q.Orders, 1)
	assert.Equal(t, 5, q.Limit)
}

func TestParseData(t *testing.T) {
	d, err := parseData(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), d["a"])
	_, err = parseData(`[1]`)
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	t.Setenv("HELLODOC_PASSWORD", "")
	pw, err := readPassword("flag", strings.NewReader("ignored\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "flag", pw)

	pw, err = readPassword("", strings.NewReader("from-stdin\r\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", pw)

	t.Setenv("HELLODOC_PASSWORD", "from-env")
	pw, err = readPassword("", strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestSecretCmd_KeygenAndSeal(t *testing.T) {
	var out bytes.Buffer
	cmd := secretCmd(&cli{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keygen"})
	require.NoError(t, cmd.Execute())
	key := strings.TrimSpace(out.String())
	_, err := secretbox.ParseKey(key)
	require.NoError(t, err)

	t.Setenv(config.MasterKeyEnv, key)
	out.Reset()
	cmd = secretCmd(&cli{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"seal", "--value", "postgres://u:p@db/app"})
	require.NoError(t, cmd.Execute())

	box, err := secretbox.New(key)
	require.NoError(t, err)
	plain, err := box.Open(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/app", plain)
}
