package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultValues(t *testing.T) {
	c := &Config{}
	assert.Nil(t, setDefaultValue(c))

	assert.Equal(t, "memory:///ftp", c.Service)
	assert.Equal(t, "0.0.0.0", c.ListenHost)
	assert.Equal(t, 21, c.ListenPort)
	assert.Equal(t, "127.0.0.1", c.PublicHost)
	assert.Equal(t, 1024, c.StartPort)
	assert.Equal(t, 65535, c.EndPort)
	assert.Equal(t, int64(1<<20), c.UploadMaxSlurpSize)
	assert.Equal(t, 5, c.MaxStatsAtOnce)
	assert.Contains(t, c.Users, "anonymous")
}

func TestAutomaticPort(t *testing.T) {
	c := &Config{ListenPort: -1}
	assert.Nil(t, setDefaultValue(c))
	assert.Equal(t, 0, c.ListenPort)
}

func TestGetServerSetting(t *testing.T) {
	c := &Config{
		StartPort:       2000,
		EndPort:         2100,
		AllowedCommands: []string{"user", "pass", "List"},
	}
	assert.Nil(t, setDefaultValue(c))

	s := GetServerSetting(c)
	assert.Equal(t, 2000, s.DataPortRange.Start)
	assert.Equal(t, 2100, s.DataPortRange.End)
	assert.True(t, s.AllowedCommands["USER"])
	assert.True(t, s.AllowedCommands["LIST"])
	assert.False(t, s.AllowedCommands["RETR"])
	assert.Nil(t, s.TLSConfig)
}
