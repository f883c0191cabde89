package cfg

type Cfg struct {
	// Application configuration
	Port               string
	BaseUrl            string
	SourcesDir         string
	APIAccessKey       string
	QueryCacheCapacity int

	// Cache backend
	CacheBackend  string
	CacheDir      string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Upstream credentials, resolved from flags or credential files
	TwitterBearerToken string
	SerpAPIKey         string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
