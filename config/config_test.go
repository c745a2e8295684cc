package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCompetitions_FileNotFound(t *testing.T) {
	comps, err := LoadCompetitions("nonexistent.yaml")
	require.Error(t, err)
	assert.Nil(t, comps)
}

func TestLoadCompetitions_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "invalid-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("not: valid: yaml: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	comps, err := LoadCompetitions(tmpfile.Name())
	require.Error(t, err)
	assert.Nil(t, comps)
}

func TestLoadCompetitions_Success(t *testing.T) {
	content := `
competitions:
  - name: CarveCTF
    redis: { host: "redis.internal", port: 6379, db: 0 }
    teams:
      - name: team1
      - name: team2
    boxes:
      - name: web
        labels: { http: "" }
        hostname: "web-server"
      - name: db
        labels: { sql: "" }
        hostname: "db-server"
    checks:
      - name: http-example
        interval: 15
        points: 10
        labelSelector: {}
        spec:
          type: http
          url: /index.html
          code: 200
          regex: "{{ team_name }}"
      - name: icmp-example
        interval: 30
        points: 5
        labelSelector: {}
        spec:
          type: icmp
          code: 0
`
	tmpfile, err := os.CreateTemp("", "competition-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	comps, err := LoadCompetitions(tmpfile.Name())
	require.NoError(t, err)
	require.Len(t, comps, 1)

	c := comps[0]
	assert.Equal(t, "CarveCTF", c.Name)
	assert.Equal(t, RedisAddress{Host: "redis.internal", Port: 6379, DB: 0}, c.LogEndpoint)
	require.Len(t, c.Teams, 2)
	require.Len(t, c.Boxes, 2)
	require.Len(t, c.Checks, 2)

	assert.Equal(t, 15*time.Second, c.Checks[0].Interval)
	httpSpec, ok := c.Checks[0].Spec.(HttpSpec)
	require.True(t, ok)
	assert.Equal(t, "/index.html", httpSpec.URL)
	assert.Equal(t, 200, httpSpec.Code)
	assert.Equal(t, "GET", httpSpec.Method)

	icmpSpec, ok := c.Checks[1].Spec.(IcmpSpec)
	require.True(t, ok)
	assert.Equal(t, uint8(0), icmpSpec.Code)

	assert.True(t, c.Boxes[0].HasLabel("http"))
	assert.False(t, c.Boxes[0].HasLabel("sql"))
}

func TestLoadCompetitions_RejectsSubSecondInterval(t *testing.T) {
	content := `
competitions:
  - name: X
    redis: { host: "r", port: 6379, db: 0 }
    checks:
      - name: bad
        interval: 0
        spec: { type: icmp, code: 0 }
`
	tmpfile, err := os.CreateTemp("", "bad-interval-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = LoadCompetitions(tmpfile.Name())
	assert.Error(t, err)
}

func TestSelectCompetition(t *testing.T) {
	comps := []Competition{{Name: "A"}, {Name: "B"}}

	got, err := SelectCompetition(comps, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)

	_, err = SelectCompetition(comps, "")
	assert.Error(t, err)

	_, err = SelectCompetition(comps, "nope")
	assert.Error(t, err)

	single := []Competition{{Name: "Solo"}}
	got, err = SelectCompetition(single, "")
	require.NoError(t, err)
	assert.Equal(t, "Solo", got.Name)
}
