package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type EchoServer struct {
	ListenAddress string
	// ApproverToken authorises the privileged surface (popup sessions and the approval API).
	ApproverToken string
}

type LoggerServer struct {
	Level              zerolog.Level
	RequestLevel       zerolog.Level
	PrettyPrintConsole bool
}

type ManagementServer struct {
	ReadinessTimeout time.Duration
	LivenessTimeout  time.Duration
}

type StorageServer struct {
	Driver string
	Path   string
	DSN    string
}

type ChaindataServer struct {
	File string
}

type BrokerServer struct {
	// RequestTTL of zero keeps pending requests until they are resolved or their session closes.
	RequestTTL    time.Duration
	SweepInterval time.Duration
}

type ProviderServer struct {
	HealthTTL   time.Duration
	Quarantine  time.Duration
	DialTimeout time.Duration
}

type FeeServer struct {
	Timeout             time.Duration
	SafetyMarginPercent int64
	MinTipWei           int64
	HistoryBlocks       uint64
}

type WatcherServer struct {
	PollInterval         time.Duration
	MaxAttempts          int
	MaxBackoff           time.Duration
	ReceiptWait          time.Duration
	SubstrateBlockWindow uint64
}

type KeystoreServer struct {
	ScryptN int
	ScryptP int
}

// MailerServer configures transfer outcome emails. Disabled when Host is empty.
type MailerServer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type Server struct {
	Echo       EchoServer
	Logger     LoggerServer
	Management ManagementServer
	Storage    StorageServer
	Chaindata  ChaindataServer
	Broker     BrokerServer
	Provider   ProviderServer
	Fee        FeeServer
	Watcher    WatcherServer
	Keystore   KeystoreServer
	Mailer     MailerServer
}

var defaults = map[string]any{
	"server.config_file":                    "",
	"server.echo.listen_address":            ":8080",
	"server.echo.approver_token":            "",
	"server.logger.level":                   "info",
	"server.logger.request_level":           "debug",
	"server.logger.pretty_print_console":    false,
	"server.management.readiness_timeout":   4 * time.Second,
	"server.management.liveness_timeout":    9 * time.Second,
	"server.storage.driver":                 "badger",
	"server.storage.path":                   "/app/data/broker",
	"server.storage.dsn":                    "",
	"server.chaindata.file":                 "/app/chaindata.toml",
	"server.broker.request_ttl":             time.Duration(0),
	"server.broker.sweep_interval":          30 * time.Second,
	"server.provider.health_ttl":            30 * time.Second,
	"server.provider.quarantine":            time.Minute,
	"server.provider.dial_timeout":          10 * time.Second,
	"server.fee.timeout":                    5 * time.Second,
	"server.fee.safety_margin_percent":      20,
	"server.fee.min_tip_wei":                1_000_000,
	"server.fee.history_blocks":             10,
	"server.watcher.poll_interval":          4 * time.Second,
	"server.watcher.max_attempts":           8,
	"server.watcher.max_backoff":            time.Minute,
	"server.watcher.receipt_wait":           30 * time.Minute,
	"server.watcher.substrate_block_window": 64,
	"server.keystore.scrypt_n":              262144,
	"server.keystore.scrypt_p":              1,
	"server.mailer.host":                    "",
	"server.mailer.port":                    587,
	"server.mailer.username":                "",
	"server.mailer.password":                "",
	"server.mailer.from":                    "",
	"server.mailer.to":                      []string{},
}

// DefaultServiceConfigFromEnv returns the server config as parsed from defaults,
// an optional config file (SERVER_CONFIG_FILE) and environment variables.
func DefaultServiceConfigFromEnv() Server {
	if !runningInTest() {
		DotEnvTryLoad(filepath.Join(workingDir(), ".env.local"), os.Setenv)
	}

	v := newViper()

	if file := v.GetString("server.config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("file", file).Msg("Failed to read config file, using environment only")
		}
	}

	return Server{
		Echo: EchoServer{
			ListenAddress: v.GetString("server.echo.listen_address"),
			ApproverToken: v.GetString("server.echo.approver_token"),
		},
		Logger: LoggerServer{
			Level:              parseLevel(v.GetString("server.logger.level"), zerolog.InfoLevel),
			RequestLevel:       parseLevel(v.GetString("server.logger.request_level"), zerolog.DebugLevel),
			PrettyPrintConsole: v.GetBool("server.logger.pretty_print_console"),
		},
		Management: ManagementServer{
			ReadinessTimeout: v.GetDuration("server.management.readiness_timeout"),
			LivenessTimeout:  v.GetDuration("server.management.liveness_timeout"),
		},
		Storage: StorageServer{
			Driver: v.GetString("server.storage.driver"),
			Path:   v.GetString("server.storage.path"),
			DSN:    v.GetString("server.storage.dsn"),
		},
		Chaindata: ChaindataServer{
			File: v.GetString("server.chaindata.file"),
		},
		Broker: BrokerServer{
			RequestTTL:    v.GetDuration("server.broker.request_ttl"),
			SweepInterval: v.GetDuration("server.broker.sweep_interval"),
		},
		Provider: ProviderServer{
			HealthTTL:   v.GetDuration("server.provider.health_ttl"),
			Quarantine:  v.GetDuration("server.provider.quarantine"),
			DialTimeout: v.GetDuration("server.provider.dial_timeout"),
		},
		Fee: FeeServer{
			Timeout:             v.GetDuration("server.fee.timeout"),
			SafetyMarginPercent: v.GetInt64("server.fee.safety_margin_percent"),
			MinTipWei:           v.GetInt64("server.fee.min_tip_wei"),
			HistoryBlocks:       v.GetUint64("server.fee.history_blocks"),
		},
		Watcher: WatcherServer{
			PollInterval:         v.GetDuration("server.watcher.poll_interval"),
			MaxAttempts:          v.GetInt("server.watcher.max_attempts"),
			MaxBackoff:           v.GetDuration("server.watcher.max_backoff"),
			ReceiptWait:          v.GetDuration("server.watcher.receipt_wait"),
			SubstrateBlockWindow: v.GetUint64("server.watcher.substrate_block_window"),
		},
		Keystore: KeystoreServer{
			ScryptN: v.GetInt("server.keystore.scrypt_n"),
			ScryptP: v.GetInt("server.keystore.scrypt_p"),
		},
		Mailer: MailerServer{
			Host:     v.GetString("server.mailer.host"),
			Port:     v.GetInt("server.mailer.port"),
			Username: v.GetString("server.mailer.username"),
			Password: v.GetString("server.mailer.password"),
			From:     v.GetString("server.mailer.from"),
			To:       v.GetStringSlice("server.mailer.to"),
		},
	}
}

// Validate checks settings the server cannot start without.
func (s Server) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(s.Echo.ListenAddress, "SERVER_ECHO_LISTEN_ADDRESS"),
		vala.StringNotEmpty(s.Storage.Driver, "SERVER_STORAGE_DRIVER"),
		vala.StringNotEmpty(s.Chaindata.File, "SERVER_CHAINDATA_FILE"),
		vala.GreaterThan(int(s.Broker.SweepInterval), 0, "SERVER_BROKER_SWEEP_INTERVAL"),
		vala.GreaterThan(int(s.Watcher.PollInterval), 0, "SERVER_WATCHER_POLL_INTERVAL"),
		vala.GreaterThan(s.Watcher.MaxAttempts, 0, "SERVER_WATCHER_MAX_ATTEMPTS"),
		vala.GreaterThan(s.Keystore.ScryptN, 1, "SERVER_KEYSTORE_SCRYPT_N"),
		vala.GreaterThan(s.Keystore.ScryptP, 0, "SERVER_KEYSTORE_SCRYPT_P"),
		storageDSNChecker(s.Storage),
		mailerChecker(s.Mailer),
	).Check()
	if err != nil {
		return errors.Wrap(err, "invalid server config")
	}

	return nil
}

func storageDSNChecker(s StorageServer) vala.Checker {
	return func() (bool, string) {
		if s.Driver == "postgres" && s.DSN == "" {
			return false, "SERVER_STORAGE_DSN is required for the postgres driver"
		}
		return true, ""
	}
}

func mailerChecker(m MailerServer) vala.Checker {
	return func() (bool, string) {
		if m.Host != "" && (m.From == "" || len(m.To) == 0) {
			return false, "SERVER_MAILER_FROM and SERVER_MAILER_TO are required when SERVER_MAILER_HOST is set"
		}
		return true, ""
	}
}

// Enabled reports whether transfer outcome emails are sent.
func (m MailerServer) Enabled() bool {
	return m.Host != ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

func parseLevel(level string, fallback zerolog.Level) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return fallback
	}

	return l
}

func runningInTest() bool {
	return strings.HasSuffix(os.Args[0], ".test")
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}

	return wd
}
