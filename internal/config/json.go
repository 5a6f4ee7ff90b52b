package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tutordesk/corekit/internal/flagx"
	"github.com/tutordesk/corekit/internal/timex"
)

// JsonUploadLimits mirrors UploadLimits for JSON unmarshalling.
type JsonUploadLimits struct {
	MaxBytes     int64    `json:"max_bytes"`
	MaxFiles     int      `json:"max_files"`
	AllowedTypes []string `json:"allowed_types"`
}

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN           string            `json:"database_dsn"`
	S3RootUser            string            `json:"s3_root_user"`
	S3RootPassword        string            `json:"s3_root_password"`
	S3Bucket              string            `json:"s3_bucket"`
	S3Region              string            `json:"s3_region"`
	S3BaseEndpoint        string            `json:"s3_base_endpoint"`
	SessionSecretKey      string            `json:"session_secret_key"`
	Environment           string            `json:"environment"`
	SentryDSN             string            `json:"sentry_dsn"`
	FallbackQueuePath     string            `json:"fallback_queue_path"`
	FallbackQueueCapacity int               `json:"fallback_queue_capacity"`
	LogFlushInterval      timex.Duration    `json:"log_flush_interval"`
	StoreCallTimeout      timex.Duration    `json:"store_call_timeout"`
	Attachment            *JsonUploadLimits `json:"attachment"`
	EssayFile             *JsonUploadLimits `json:"essay_file"`
	SerializeAppends      bool              `json:"serialize_appends"`
	DeduplicateMessages   bool              `json:"deduplicate_messages"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.SessionSecretKey = c.SessionSecretKey
	config.Environment = c.Environment
	config.SentryDSN = c.SentryDSN
	config.FallbackQueuePath = c.FallbackQueuePath

	// numeric settings keep their defaults when omitted: zero values here
	// mean "not set", not "disable"
	if c.FallbackQueueCapacity > 0 {
		config.FallbackQueueCapacity = c.FallbackQueueCapacity
	}
	if c.LogFlushInterval.Duration > 0 {
		config.LogFlushInterval = time.Duration(c.LogFlushInterval.Duration)
	}
	if c.StoreCallTimeout.Duration > 0 {
		config.StoreCallTimeout = time.Duration(c.StoreCallTimeout.Duration)
	}
	config.SerializeAppends = c.SerializeAppends
	config.DeduplicateMessages = c.DeduplicateMessages

	if c.Attachment != nil {
		config.Attachment = UploadLimits{
			MaxBytes:     c.Attachment.MaxBytes,
			MaxFiles:     c.Attachment.MaxFiles,
			AllowedTypes: c.Attachment.AllowedTypes,
		}
	}
	if c.EssayFile != nil {
		config.EssayFile = UploadLimits{
			MaxBytes:     c.EssayFile.MaxBytes,
			MaxFiles:     c.EssayFile.MaxFiles,
			AllowedTypes: c.EssayFile.AllowedTypes,
		}
	}
}
