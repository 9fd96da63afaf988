package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "CALENDAR_CONNECTOR"

	URL_APP_NAME          = "URL_App_Name"
	URL_PATH_PREFIX       = "URL_Path_Prefix"
	URL_BASE_PATH         = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT = "HTTP_Shutdown_Timeout"
	PROFILE               = "Enable_Profile"
	ENVIRONMENT           = "Environment"

	DB_HOST          = "Database_Host"
	DB_PORT          = "Database_Port"
	DB_USER          = "Database_User"
	DB_PASSWORD      = "Database_Password"
	DB_NAME          = "Database_Name"
	DB_SSL_MODE      = "Database_SSL_Mode"
	DB_SSL_ROOT_CERT = "Database_SSL_Root_Cert"
	DB_QUERY_TIMEOUT = "Database_Query_Timeout"

	GOOGLE_CLIENT_ID     = "Google_Client_Id"
	GOOGLE_CLIENT_SECRET = "Google_Client_Secret"
	GOOGLE_REDIRECT_URL  = "Google_Redirect_Url"

	TOKEN_ENCRYPTION_KEY = "Token_Encryption_Key"
	STATE_SIGNING_SECRET = "OAuth_State_Signing_Secret"
	STATE_TTL            = "OAuth_State_TTL"

	TOKEN_REFRESH_SAFETY_MARGIN = "Token_Refresh_Safety_Margin"
	EVENT_FETCH_PAGE_SIZE       = "Event_Fetch_Page_Size"
	EVENT_FETCH_MAX_ATTEMPTS    = "Event_Fetch_Max_Attempts"
	EVENT_FETCH_RETRY_DELAY     = "Event_Fetch_Retry_Delay"
	EVENT_FETCH_HTTP_TIMEOUT    = "Event_Fetch_HTTP_Timeout"
	SYNC_RUN_TIMEOUT            = "Sync_Run_Timeout"
	SYNC_PROGRESS_BUFFER_SIZE   = "Sync_Progress_Buffer_Size"

	ANALYST_DIRECTORY_CACHE_TTL = "Analyst_Directory_Cache_TTL"

	SCHEDULER_CRON_SPEC    = "Scheduler_Cron_Spec"
	SCHEDULER_SYNC_WORKERS = "Scheduler_Sync_Workers"

	KAFKA_BROKERS                 = "Kafka_Brokers"
	KAFKA_SYNC_EVENTS_TOPIC       = "Kafka_Sync_Events_Topic"
	KAFKA_SYNC_EVENTS_BATCH_SIZE  = "Kafka_Sync_Events_Batch_Size"
	KAFKA_SYNC_EVENTS_BATCH_BYTES = "Kafka_Sync_Events_Batch_Bytes"
	KAFKA_USERNAME                = "Kafka_Username"
	KAFKA_PASSWORD                = "Kafka_Password"
	KAFKA_SASL_MECHANISM          = "Kafka_SASL_Mechanism"
	KAFKA_CA                      = "Kafka_CA"

	ENVIRONMENT_DEVELOPMENT = "development"
	ENVIRONMENT_PRODUCTION  = "production"
)

type Config struct {
	UrlAppName          string
	UrlPathPrefix       string
	UrlBasePath         string
	HttpShutdownTimeout time.Duration
	Profile             bool
	Environment         string

	DatabaseHost         string
	DatabasePort         int
	DatabaseUser         string
	DatabasePassword     string
	DatabaseName         string
	DatabaseSslMode      string
	DatabaseSslRootCert  string
	DatabaseQueryTimeout time.Duration

	GoogleClientId     string
	GoogleClientSecret string
	GoogleRedirectUrl  string

	TokenEncryptionKey string
	StateSigningSecret string
	StateTTL           time.Duration

	TokenRefreshSafetyMargin time.Duration
	EventFetchPageSize       int
	EventFetchMaxAttempts    int
	EventFetchRetryDelay     time.Duration
	EventFetchHttpTimeout    time.Duration
	SyncRunTimeout           time.Duration
	SyncProgressBufferSize   int

	AnalystDirectoryCacheTTL time.Duration

	SchedulerCronSpec    string
	SchedulerSyncWorkers int

	KafkaBrokers              []string
	KafkaSyncEventsTopic      string
	KafkaSyncEventsBatchSize  int
	KafkaSyncEventsBatchBytes int
	KafkaUsername             string
	KafkaPassword             string
	KafkaSASLMechanism        string
	KafkaCA                   string
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", ENVIRONMENT, c.Environment)
	fmt.Fprintf(&b, "%s: %s\n", DB_HOST, c.DatabaseHost)
	fmt.Fprintf(&b, "%s: %d\n", DB_PORT, c.DatabasePort)
	fmt.Fprintf(&b, "%s: %s\n", DB_NAME, c.DatabaseName)
	fmt.Fprintf(&b, "%s: %s\n", DB_SSL_MODE, c.DatabaseSslMode)
	fmt.Fprintf(&b, "%s: %s\n", DB_QUERY_TIMEOUT, c.DatabaseQueryTimeout)
	fmt.Fprintf(&b, "%s: %s\n", GOOGLE_REDIRECT_URL, c.GoogleRedirectUrl)
	fmt.Fprintf(&b, "%s: %s\n", STATE_TTL, c.StateTTL)
	fmt.Fprintf(&b, "%s: %s\n", TOKEN_REFRESH_SAFETY_MARGIN, c.TokenRefreshSafetyMargin)
	fmt.Fprintf(&b, "%s: %d\n", EVENT_FETCH_PAGE_SIZE, c.EventFetchPageSize)
	fmt.Fprintf(&b, "%s: %d\n", EVENT_FETCH_MAX_ATTEMPTS, c.EventFetchMaxAttempts)
	fmt.Fprintf(&b, "%s: %s\n", EVENT_FETCH_RETRY_DELAY, c.EventFetchRetryDelay)
	fmt.Fprintf(&b, "%s: %s\n", EVENT_FETCH_HTTP_TIMEOUT, c.EventFetchHttpTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_RUN_TIMEOUT, c.SyncRunTimeout)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_PROGRESS_BUFFER_SIZE, c.SyncProgressBufferSize)
	fmt.Fprintf(&b, "%s: %s\n", ANALYST_DIRECTORY_CACHE_TTL, c.AnalystDirectoryCacheTTL)
	fmt.Fprintf(&b, "%s: %s\n", SCHEDULER_CRON_SPEC, c.SchedulerCronSpec)
	fmt.Fprintf(&b, "%s: %d\n", SCHEDULER_SYNC_WORKERS, c.SchedulerSyncWorkers)
	fmt.Fprintf(&b, "%s: %s\n", KAFKA_BROKERS, c.KafkaBrokers)
	fmt.Fprintf(&b, "%s: %s\n", KAFKA_SYNC_EVENTS_TOPIC, c.KafkaSyncEventsTopic)
	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "calendar-connector")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(PROFILE, false)
	options.SetDefault(ENVIRONMENT, ENVIRONMENT_DEVELOPMENT)

	options.SetDefault(DB_HOST, "localhost")
	options.SetDefault(DB_PORT, 5432)
	options.SetDefault(DB_USER, "calendar-connector")
	options.SetDefault(DB_PASSWORD, "calendar-connector")
	options.SetDefault(DB_NAME, "calendar-connector")
	options.SetDefault(DB_SSL_MODE, "disable")
	options.SetDefault(DB_SSL_ROOT_CERT, "db_ssl_root_cert.pem")
	options.SetDefault(DB_QUERY_TIMEOUT, 5)

	options.SetDefault(GOOGLE_CLIENT_ID, "")
	options.SetDefault(GOOGLE_CLIENT_SECRET, "")
	options.SetDefault(GOOGLE_REDIRECT_URL, "http://localhost:8000/api/calendar-connector/v1/connections/auth/callback")

	options.SetDefault(TOKEN_ENCRYPTION_KEY, "")
	options.SetDefault(STATE_SIGNING_SECRET, "")
	options.SetDefault(STATE_TTL, "10m")

	options.SetDefault(TOKEN_REFRESH_SAFETY_MARGIN, "2m")
	options.SetDefault(EVENT_FETCH_PAGE_SIZE, 100)
	options.SetDefault(EVENT_FETCH_MAX_ATTEMPTS, 4)
	options.SetDefault(EVENT_FETCH_RETRY_DELAY, "500ms")
	options.SetDefault(EVENT_FETCH_HTTP_TIMEOUT, "15s")
	options.SetDefault(SYNC_RUN_TIMEOUT, "10m")
	options.SetDefault(SYNC_PROGRESS_BUFFER_SIZE, 128)

	options.SetDefault(ANALYST_DIRECTORY_CACHE_TTL, "1m")

	options.SetDefault(SCHEDULER_CRON_SPEC, "0 */6 * * *")
	options.SetDefault(SCHEDULER_SYNC_WORKERS, 4)

	options.SetDefault(KAFKA_BROKERS, []string{})
	options.SetDefault(KAFKA_SYNC_EVENTS_TOPIC, "platform.calendar-connector.sync-events")
	options.SetDefault(KAFKA_SYNC_EVENTS_BATCH_SIZE, 100)
	options.SetDefault(KAFKA_SYNC_EVENTS_BATCH_BYTES, 1048576)
	options.SetDefault(KAFKA_USERNAME, "")
	options.SetDefault(KAFKA_PASSWORD, "")
	options.SetDefault(KAFKA_SASL_MECHANISM, "")
	options.SetDefault(KAFKA_CA, "")

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlAppName:          options.GetString(URL_APP_NAME),
		UrlPathPrefix:       options.GetString(URL_PATH_PREFIX),
		UrlBasePath:         buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout: options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		Profile:             options.GetBool(PROFILE),
		Environment:         options.GetString(ENVIRONMENT),

		DatabaseHost:         options.GetString(DB_HOST),
		DatabasePort:         options.GetInt(DB_PORT),
		DatabaseUser:         options.GetString(DB_USER),
		DatabasePassword:     options.GetString(DB_PASSWORD),
		DatabaseName:         options.GetString(DB_NAME),
		DatabaseSslMode:      options.GetString(DB_SSL_MODE),
		DatabaseSslRootCert:  options.GetString(DB_SSL_ROOT_CERT),
		DatabaseQueryTimeout: options.GetDuration(DB_QUERY_TIMEOUT) * time.Second,

		GoogleClientId:     options.GetString(GOOGLE_CLIENT_ID),
		GoogleClientSecret: options.GetString(GOOGLE_CLIENT_SECRET),
		GoogleRedirectUrl:  options.GetString(GOOGLE_REDIRECT_URL),

		TokenEncryptionKey: options.GetString(TOKEN_ENCRYPTION_KEY),
		StateSigningSecret: options.GetString(STATE_SIGNING_SECRET),
		StateTTL:           options.GetDuration(STATE_TTL),

		TokenRefreshSafetyMargin: options.GetDuration(TOKEN_REFRESH_SAFETY_MARGIN),
		EventFetchPageSize:       options.GetInt(EVENT_FETCH_PAGE_SIZE),
		EventFetchMaxAttempts:    options.GetInt(EVENT_FETCH_MAX_ATTEMPTS),
		EventFetchRetryDelay:     options.GetDuration(EVENT_FETCH_RETRY_DELAY),
		EventFetchHttpTimeout:    options.GetDuration(EVENT_FETCH_HTTP_TIMEOUT),
		SyncRunTimeout:           options.GetDuration(SYNC_RUN_TIMEOUT),
		SyncProgressBufferSize:   options.GetInt(SYNC_PROGRESS_BUFFER_SIZE),

		AnalystDirectoryCacheTTL: options.GetDuration(ANALYST_DIRECTORY_CACHE_TTL),

		SchedulerCronSpec:    options.GetString(SCHEDULER_CRON_SPEC),
		SchedulerSyncWorkers: options.GetInt(SCHEDULER_SYNC_WORKERS),

		KafkaBrokers:              options.GetStringSlice(KAFKA_BROKERS),
		KafkaSyncEventsTopic:      options.GetString(KAFKA_SYNC_EVENTS_TOPIC),
		KafkaSyncEventsBatchSize:  options.GetInt(KAFKA_SYNC_EVENTS_BATCH_SIZE),
		KafkaSyncEventsBatchBytes: options.GetInt(KAFKA_SYNC_EVENTS_BATCH_BYTES),
		KafkaUsername:             options.GetString(KAFKA_USERNAME),
		KafkaPassword:             options.GetString(KAFKA_PASSWORD),
		KafkaSASLMechanism:        options.GetString(KAFKA_SASL_MECHANISM),
		KafkaCA:                   options.GetString(KAFKA_CA),
	}
}

// Validate fails fast on settings that must be present before the process is
// allowed to serve traffic.  In development mode the secrets may be blank so
// that a local instance can start without a vault; everywhere else a missing
// secret is a startup failure, never a silent fallback.
func (c *Config) Validate() error {

	if c.Environment != ENVIRONMENT_DEVELOPMENT {
		if c.TokenEncryptionKey == "" {
			return &domain.ConfigurationError{Setting: TOKEN_ENCRYPTION_KEY, Detail: "token encryption key is required outside development"}
		}
		if c.StateSigningSecret == "" {
			return &domain.ConfigurationError{Setting: STATE_SIGNING_SECRET, Detail: "oauth state signing secret is required outside development"}
		}
		if c.GoogleClientId == "" || c.GoogleClientSecret == "" {
			return &domain.ConfigurationError{Setting: GOOGLE_CLIENT_ID, Detail: "google oauth client credentials are required outside development"}
		}
	}

	if c.TokenEncryptionKey != "" {
		key, err := hex.DecodeString(c.TokenEncryptionKey)
		if err != nil {
			return &domain.ConfigurationError{Setting: TOKEN_ENCRYPTION_KEY, Detail: "token encryption key must be hex encoded"}
		}
		if len(key) != 32 {
			return &domain.ConfigurationError{Setting: TOKEN_ENCRYPTION_KEY, Detail: fmt.Sprintf("token encryption key must be 32 bytes, got %d", len(key))}
		}
	}

	if c.DatabaseSslMode != "disable" && c.DatabaseSslMode != "verify-full" {
		return &domain.ConfigurationError{Setting: DB_SSL_MODE, Detail: "must be one of disable, verify-full"}
	}

	return nil
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
