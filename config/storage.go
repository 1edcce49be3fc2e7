package config

import "time"

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool
	BucketName    string
	// PublicBaseURL, when set, is used to build object URLs instead of presigning.
	PublicBaseURL string
	URLExpiry     time.Duration
}

// Endpoint returns host:port for the MinIO client.
func (s StorageConfig) Endpoint() string {
	return s.MinioHost + ":" + s.MinioPort
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		MinioHost:     "localhost",
		MinioPort:     "9000",
		MinioUsername: "minioadmin",
		MinioPassword: "minioadmin",
		BucketName:    "godrop",
		URLExpiry:     15 * time.Minute,
	}
}

// loadStorageEnv overlays storage settings from the environment.
func loadStorageEnv(s *StorageConfig) {
	s.MinioHost = getEnv("MINIO_HOST", s.MinioHost)
	s.MinioPort = getEnv("MINIO_PORT", s.MinioPort)
	s.MinioUsername = getEnv("MINIO_USERNAME", s.MinioUsername)
	s.MinioPassword = getEnv("MINIO_PASSWORD", s.MinioPassword)
	s.MinioUseSSL = getEnvBool("MINIO_USE_SSL", s.MinioUseSSL)
	s.BucketName = getEnv("BUCKET_NAME", s.BucketName)
	s.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", s.PublicBaseURL)
	s.URLExpiry = getEnvDuration("STORAGE_URL_EXPIRY", s.URLExpiry)
}
