package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by the live CLI.
const (
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvAPIKeyFallback = "API_KEY"
	EnvLanguage       = "LIVE_LANGUAGE"
	EnvVoice          = "LIVE_VOICE"
	EnvModel          = "LIVE_MODEL"
	EnvTransport      = "LIVE_TRANSPORT"
	EnvHTTPAddr       = "LIVE_HTTP_ADDR"
	EnvAudioBackend   = "LIVE_AUDIO_BACKEND"
	EnvGoogleSearch   = "LIVE_GOOGLE_SEARCH"
	EnvLogLevel       = "LOG_LEVEL"
)

// APIKey returns the API key from GEMINI_API_KEY.
// Falls back to API_KEY if not set.
func APIKey() string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	return os.Getenv(EnvAPIKeyFallback)
}

// LoadDotEnv loads variables from .env files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// envString returns the variable if set and non-empty.
func envString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

// envBool parses a boolean variable. Unparseable values are ignored.
func envBool(key string) (bool, bool) {
	v, ok := envString(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
