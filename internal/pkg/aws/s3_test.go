package aws

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/postgres"
)

func Test_SpacesEndpointResolver(t *testing.T) {
	resolver := spacesEndpointResolver("https://nyc3.digitaloceanspaces.com")

	endpoint, err := resolver("S3", "us-east-1")
	assert.NoError(t, err)
	assert.Equal(t, "https://nyc3.digitaloceanspaces.com", endpoint.URL)
}

func Test_NewClient(t *testing.T) {
	client, err := NewClient(config.ServerConfig{
		AppName: "heater-control",
		S3Config: config.S3Config{
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			Region:          "nyc3",
			URL:             "https://nyc3.digitaloceanspaces.com",
			Bucket:          "heater-backups",
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "heater-backups", client.Bucket)
	assert.Equal(t, "backups/heater-control", client.BackupFileKey)
	assert.Equal(t, "/tmp/heater-control", client.TmpWritePath)
}

func Test_WriteBackupFile(t *testing.T) {
	client := Client{TmpWritePath: t.TempDir() + "/backup"}

	err := client.WriteBackupFile([]postgres.Reading{
		{Measurement: "temperature", Tag: "home", Value: 19.5, Timestamp: "2026-01-15T08:00:00Z"},
		{Measurement: "humidity", Tag: "home", Value: 48, Timestamp: "2026-01-15T08:00:00Z"},
	})
	assert.NoError(t, err)

	f, err := os.Open(client.TmpWritePath)
	assert.NoError(t, err)
	defer f.Close()

	dec := json.NewDecoder(f)
	var first postgres.Reading
	assert.NoError(t, dec.Decode(&first))
	assert.Equal(t, "temperature", first.Measurement)
	assert.Equal(t, 19.5, first.Value)

	var second postgres.Reading
	assert.NoError(t, dec.Decode(&second))
	assert.Equal(t, "humidity", second.Measurement)
}
