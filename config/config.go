package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided
// via the config file or the environment.
type AppConfig struct {
	AppPort     string
	JWTSecret   string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Feed settings
	PostsPerPage int
	// Page cache for the rendered global feed
	PageCacheTTLSeconds int
	// Auth endpoint throttling
	RateLimitPerMinute int
	AllowedOrigins     []string
	// GitHub social login
	GitHubClientID     string
	GitHubClientSecret string
	OAuthRedirectBase  string
	// Gin framework configuration
	GinMode       string
	GinPath       string
	TemplatesGlob string
	// Redis for page caching and token revocation
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Uploaded post images
	UploadsDir               string
	UploadsPendingTTLMinutes int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during
// boot. Precedence: config/config.json -> defaults -> environment overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// SetForTesting replaces the cached configuration. Test hook only.
func SetForTesting(c AppConfig) {
	cfg = c
	loaded = true
}

// loadJSONConfig reads a flat JSON file into cfg if present. Returns error
// only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(key string) string {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := raw[key]; ok {
			if n, ok := v.(float64); ok {
				return int(n)
			}
		}
		return 0
	}
	getBool := func(key string) bool {
		if v, ok := raw[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStrings := func(key string) []string {
		if v, ok := raw[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	out.AppPort = getString("app_port")
	out.JWTSecret = getString("jwt_secret")
	out.DatabaseURI = getString("database_uri")
	out.DBHost = getString("db_host")
	out.DBPort = getString("db_port")
	out.DBUser = getString("db_user")
	out.DBPassword = getString("db_password")
	out.DBName = getString("db_name")
	out.PostsPerPage = getInt("posts_per_page")
	out.PageCacheTTLSeconds = getInt("page_cache_ttl_seconds")
	out.RateLimitPerMinute = getInt("rate_limit_per_minute")
	out.AllowedOrigins = getStrings("allowed_origins")
	out.GitHubClientID = getString("github_client_id")
	out.GitHubClientSecret = getString("github_client_secret")
	out.OAuthRedirectBase = getString("oauth_redirect_base")
	out.GinMode = getString("gin_mode")
	out.GinPath = getString("gin_path")
	out.TemplatesGlob = getString("templates_glob")
	out.RedisHost = getString("redis_host")
	out.RedisPort = getInt("redis_port")
	out.RedisDB = getInt("redis_db")
	out.RedisPassword = getString("redis_password")
	out.LogLevel = getString("log_level")
	out.LogPath = getString("log_path")
	out.LogMaxSizeMB = getInt("log_max_size_mb")
	out.LogMaxBackups = getInt("log_max_backups")
	out.LogMaxAgeDays = getInt("log_max_age_days")
	out.LogCompress = getBool("log_compress")
	out.UploadsDir = getString("uploads_dir")
	out.UploadsPendingTTLMinutes = getInt("uploads_pending_ttl_minutes")
	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "yatube"
	}
	if c.DBName == "" {
		c.DBName = "yatube"
	}
	if c.PostsPerPage <= 0 {
		c.PostsPerPage = 10
	}
	if c.PageCacheTTLSeconds <= 0 {
		c.PageCacheTTLSeconds = 20
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 30
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.TemplatesGlob == "" {
		c.TemplatesGlob = "templates/*.html"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/yatube.log"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join("static", "uploads")
	}
	if c.UploadsPendingTTLMinutes <= 0 {
		c.UploadsPendingTTLMinutes = 60
	}
}

func applyEnvOverrides(c *AppConfig) {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.DatabaseURI = getEnv("DATABASE_URI", c.DatabaseURI)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.GitHubClientID = getEnv("GITHUB_CLIENT_ID", c.GitHubClientID)
	c.GitHubClientSecret = getEnv("GITHUB_CLIENT_SECRET", c.GitHubClientSecret)
	c.OAuthRedirectBase = getEnv("OAUTH_REDIRECT_BASE", c.OAuthRedirectBase)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.GinPath = getEnv("GIN_PATH", c.GinPath)
	c.TemplatesGlob = getEnv("TEMPLATES_GLOB", c.TemplatesGlob)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogPath = getEnv("LOG_PATH", c.LogPath)
	c.UploadsDir = getEnv("UPLOADS_DIR", c.UploadsDir)

	if v := os.Getenv("POSTS_PER_PAGE"); v != "" {
		c.PostsPerPage = mustParseInt(v)
	}
	if v := os.Getenv("PAGE_CACHE_TTL_SECONDS"); v != "" {
		c.PageCacheTTLSeconds = mustParseInt(v)
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := os.Getenv("UPLOADS_PENDING_TTL_MINUTES"); v != "" {
		c.UploadsPendingTTLMinutes = mustParseInt(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("LOG_COMPRESS"); v != "" {
		c.LogCompress = v == "1" || strings.EqualFold(v, "true")
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func mustParseInt(val string) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer config value %q: %v", val, err)
	}
	return n
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			res = append(res, s)
		}
	}
	return res
}
