package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SubstitutesKnownPlaceholders(t *testing.T) {
	out, err := Resolve("check1", "http://{{ ip }}/health?team={{ team_name }}", Values{
		TeamName: "team1",
		IP:       "web-server.team1.CarveCTF.hack",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://web-server.team1.CarveCTF.hack/health?team=team1", out)
}

func TestResolve_LeavesUnknownPlaceholdersLiteral(t *testing.T) {
	out, err := Resolve("check1", "{{ team_name }} says {{ unknown_thing }}", Values{TeamName: "team1"})
	require.NoError(t, err)
	assert.Equal(t, "team1 says {{ unknown_thing }}", out)
}

func TestResolve_NoCredentialsShortCircuits(t *testing.T) {
	_, err := Resolve("check1", "user={{ username }}", Values{HasCredentials: false})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestResolve_CredentialsPresentSubstitutes(t *testing.T) {
	out, err := Resolve("check1", "user={{ username }} pass={{ password }}", Values{
		HasCredentials: true,
		Username:       "alice",
		Password:       "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "user=alice pass=secret", out)
}

func TestResolve_IsSinglePass(t *testing.T) {
	// If substituting {{ team_name }} yields literal text that itself
	// looks like a placeholder, it must not be re-substituted.
	out, err := Resolve("check1", "{{ team_name }}", Values{TeamName: "{{ ip }}"})
	require.NoError(t, err)
	assert.Equal(t, "{{ ip }}", out)
}
