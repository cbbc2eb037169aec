package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pi-apps/a2u/internal/core/ports"
	"github.com/pi-apps/a2u/internal/infrastructure/db"
	envunlocker "github.com/pi-apps/a2u/internal/infrastructure/unlocker/env"
	fileunlocker "github.com/pi-apps/a2u/internal/infrastructure/unlocker/file"
	"github.com/pi-apps/a2u/pkg/a2u"
	"github.com/pi-apps/a2u/utils"
)

type Config struct {
	Datadir          string
	HTTPPort         uint32
	LogLevel         uint32
	Network          string
	ApiKey           string
	ApiURL           string
	HorizonURL       string
	DbType           string
	DbDsn            string
	RecoveryInterval uint32
	JWTSecret        string
	SentryDSN        string
	UnlockerType     string
	UnlockerFilePath string
	WalletSeed       string
	WalletMnemonic   string

	unlocker ports.Unlocker
}

var (
	Datadir          = "DATADIR"
	HTTPPort         = "HTTP_PORT"
	LogLevel         = "LOG_LEVEL"
	Network          = "NETWORK"
	ApiKey           = "API_KEY"
	ApiURL           = "API_URL"
	HorizonURL       = "HORIZON_URL"
	DbType           = "DB_TYPE"
	DbDsn            = "DB_DSN"
	RecoveryInterval = "RECOVERY_INTERVAL"
	JWTSecret        = "JWT_SECRET"
	SentryDSN        = "SENTRY_DSN"

	// Unlocker configuration
	UnlockerType     = "UNLOCKER_TYPE"
	UnlockerFilePath = "UNLOCKER_FILE_PATH"
	WalletSeed       = "WALLET_SEED"
	WalletMnemonic   = "WALLET_MNEMONIC"

	defaultDatadir          = appDatadir("a2ud", false)
	defaultHTTPPort         = 7001
	defaultLogLevel         = 4
	defaultNetwork          = string(a2u.Testnet)
	defaultDbType           = db.TypeBadger
	defaultRecoveryInterval = 60
	defaultUnlockerType     = "env"

	supportedDbTypes = []string{db.TypeBadger, db.TypeSqlite, db.TypePostgres}

	envFile = ".env"
)

const minJWTSecretLen = 32

// LoadConfig reads the configuration from the environment, prefixed with
// A2U_. Variables found in a .env file of the working directory are loaded
// first without overriding the ones already set.
func LoadConfig() (*Config, error) {
	if err := loadEnv(); err != nil {
		return nil, err
	}

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(HTTPPort, defaultHTTPPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(RecoveryInterval, defaultRecoveryInterval)
	viper.SetDefault(UnlockerType, defaultUnlockerType)

	config := &Config{
		Datadir:          cleanAndExpandPath(viper.GetString(Datadir)),
		HTTPPort:         viper.GetUint32(HTTPPort),
		LogLevel:         viper.GetUint32(LogLevel),
		Network:          viper.GetString(Network),
		ApiKey:           viper.GetString(ApiKey),
		ApiURL:           viper.GetString(ApiURL),
		HorizonURL:       viper.GetString(HorizonURL),
		DbType:           viper.GetString(DbType),
		DbDsn:            viper.GetString(DbDsn),
		RecoveryInterval: viper.GetUint32(RecoveryInterval),
		JWTSecret:        viper.GetString(JWTSecret),
		SentryDSN:        viper.GetString(SentryDSN),
		UnlockerType:     viper.GetString(UnlockerType),
		UnlockerFilePath: cleanAndExpandPath(viper.GetString(UnlockerFilePath)),
		WalletSeed:       viper.GetString(WalletSeed),
		WalletMnemonic:   viper.GetString(WalletMnemonic),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := makeDirectoryIfNotExists(config.Datadir); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	if err := config.initUnlockerService(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if len(c.ApiKey) <= 0 {
		return fmt.Errorf("missing %s", ApiKey)
	}
	if _, err := a2u.ParseNetwork(c.Network); err != nil {
		return err
	}
	if len(c.ApiURL) > 0 && !utils.IsValidHttpURL(c.ApiURL) {
		return fmt.Errorf("invalid %s %q", ApiURL, c.ApiURL)
	}
	if len(c.HorizonURL) > 0 && !utils.IsValidHttpURL(c.HorizonURL) {
		return fmt.Errorf("invalid %s %q", HorizonURL, c.HorizonURL)
	}
	if !isSupportedDbType(c.DbType) {
		return fmt.Errorf(
			"unsupported %s %q, please select one of %s",
			DbType, c.DbType, strings.Join(supportedDbTypes, ","),
		)
	}
	if c.DbType == db.TypePostgres && len(c.DbDsn) <= 0 {
		return fmt.Errorf("missing %s for postgres db", DbDsn)
	}
	if len(c.SentryDSN) > 0 && !utils.IsValidURL(c.SentryDSN) {
		return fmt.Errorf("invalid %s", SentryDSN)
	}
	return validateJWTSecret(c.JWTSecret)
}

// LoadJWTSecret reads only the secret signing the API tokens, for tools that
// issue tokens without running the service.
func LoadJWTSecret() (string, error) {
	if err := loadEnv(); err != nil {
		return "", err
	}
	secret := viper.GetString(JWTSecret)
	if err := validateJWTSecret(secret); err != nil {
		return "", err
	}
	return secret, nil
}

func loadEnv() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %s", envFile, err)
	}

	viper.SetEnvPrefix("A2U")
	viper.AutomaticEnv()
	return nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < minJWTSecretLen {
		return fmt.Errorf("%s must be at least %d chars long", JWTSecret, minJWTSecretLen)
	}
	return nil
}

func (c *Config) UnlockerService() ports.Unlocker {
	return c.unlocker
}

func (c *Config) WithSentry() bool {
	return len(c.SentryDSN) > 0
}

func (c *Config) RecoveryPeriod() time.Duration {
	return time.Duration(c.RecoveryInterval) * time.Second
}

// DbConfig returns the args of the db service for the configured type.
func (c *Config) DbConfig() []any {
	switch c.DbType {
	case db.TypeSqlite:
		return []any{filepath.Join(c.Datadir, "db")}
	case db.TypePostgres:
		return []any{c.DbDsn}
	default:
		return []any{filepath.Join(c.Datadir, "db"), nil}
	}
}

func (c *Config) initUnlockerService() error {
	var svc ports.Unlocker
	var err error
	switch c.UnlockerType {
	case "file":
		svc, err = fileunlocker.NewService(c.UnlockerFilePath)
	case "env":
		svc, err = envunlocker.NewService(c.WalletSeed, c.WalletMnemonic)
	default:
		err = fmt.Errorf("unknown unlocker type %q", c.UnlockerType)
	}
	if err != nil {
		return err
	}
	c.unlocker = svc
	return nil
}

func isSupportedDbType(dbType string) bool {
	for _, t := range supportedDbTypes {
		if t == dbType {
			return true
		}
	}
	return false
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDataDir returns an operating system specific directory to be used for
// storing application data for an application.  See AppDataDir for more
// details.  This unexported version takes an operating system argument
// primarily to enable the testing package to properly test the function by
// forcing an operating system that is not the currently one.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	// The caller really shouldn't prepend the appName with a period, but
	// if they do, handle it gracefully by trimming it.
	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	// Get the OS specific home directory via the Go standard lib.
	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}

	// Fall back to standard HOME environment variable that works
	// for most POSIX OSes if the directory from the Go standard
	// lib failed.
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	goos := runtime.GOOS
	switch goos {
	// Attempt to use the LOCALAPPDATA or APPDATA environment variable on
	// Windows.
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA, so fallback
		// to regular APPDATA when LOCALAPPDATA is not set.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}

		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	// Fall back to the current directory if all else fails.
	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
