package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"fracturedechoes.app/internal/persistence/cloudsave"
	"fracturedechoes.app/internal/session"
)

type cloudRuntime struct {
	enabled  bool
	identity string
	mirror   *cloudsave.Mirror
}

// buildCloudRuntime wires the optional cloud mirror from the environment:
// FE_CLOUD_SAVE=true plus FE_CLOUD_ENDPOINT/FE_CLOUD_BUCKET/
// FE_CLOUD_ACCESS_KEY_ID/FE_CLOUD_SECRET_ACCESS_KEY.
func buildCloudRuntime(dataDir, prefix string, sess *session.Session, logger *log.Logger) (*cloudRuntime, error) {
	enabled := envBool("FE_CLOUD_SAVE", false)
	if !enabled {
		return &cloudRuntime{enabled: false}, nil
	}

	endpoint := trimmedEnv("FE_CLOUD_ENDPOINT")
	bucket := trimmedEnv("FE_CLOUD_BUCKET")
	accessKeyID := trimmedEnv("FE_CLOUD_ACCESS_KEY_ID")
	secretAccessKey := trimmedEnv("FE_CLOUD_SECRET_ACCESS_KEY")

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("FE_CLOUD_SAVE=true but FE_CLOUD_ENDPOINT/FE_CLOUD_BUCKET/FE_CLOUD_ACCESS_KEY_ID/FE_CLOUD_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := cloudsave.NewClient(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	identity, err := cloudsave.LoadOrCreateIdentity(filepath.Join(dataDir, "identity"))
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	mirror := cloudsave.NewMirror(client, prefix, sess.CaptureDocument, logger)
	mirror.Ready(identity)
	sess.AttachMirror(mirror)

	return &cloudRuntime{enabled: true, identity: identity, mirror: mirror}, nil
}

func envBool(key string, def bool) bool {
	v := trimmedEnv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
