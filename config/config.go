package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Validators hold the list of validation functions for each configuration
// property. Validators must take a key and json string respectively as
// arguments, and must return either an error or nil depending on whether or not
// the given key and value are valid. Validators will only be run if a property
// being set matches the name given in this map.
var Validators = map[string]func(string, string) error{
	"chain.networkName": validateLettersOnly,
}

// Config is an in-memory representation of the walletd configuration file.
type Config struct {
	App     AppConfig     `json:"app"`
	Chain   ChainConfig   `json:"chain"`
	Backend BackendConfig `json:"backend"`
	API     APIConfig     `json:"api"`
}

// AppConfig is the application display metadata shown to the human during
// relay handshakes.
type AppConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
}

func newDefaultAppConfig() AppConfig {
	return AppConfig{
		Name:        "TalentChain",
		Description: "TalentChain skill wallet",
		URL:         "https://talentchain.example",
		Icon:        "https://talentchain.example/icon.png",
	}
}

// ChainConfig selects which network/chain sessions are validated against.
type ChainConfig struct {
	NetworkName string `json:"networkName"`
	ChainID     uint64 `json:"chainId"`
	// MirrorURL is the ledger mirror REST endpoint used for balance reads.
	MirrorURL string `json:"mirrorUrl"`
}

func newDefaultChainConfig() ChainConfig {
	return ChainConfig{
		NetworkName: "testnet",
		ChainID:     296,
		MirrorURL:   "https://testnet.mirrornode.hedera.com",
	}
}

// BackendConfig holds the per-backend endpoints.
type BackendConfig struct {
	// EvmEndpoint is the injected provider JSON-RPC address.
	EvmEndpoint string `json:"evmEndpoint"`
	// LedgerRelay is the native ledger wallet relay websocket address.
	LedgerRelay string `json:"ledgerRelay"`
	// RelayURL is the generic relay-session protocol address.
	RelayURL string `json:"relayUrl"`
	// ProjectID identifies this application to the generic relay.
	ProjectID string `json:"projectId"`
}

func newDefaultBackendConfig() BackendConfig {
	return BackendConfig{
		EvmEndpoint: "http://127.0.0.1:7546",
		LedgerRelay: "wss://relay.hashgraph.example/ws",
		RelayURL:    "wss://relay.walletconnect.example",
	}
}

// APIConfig holds all configuration options related to the daemon api.
type APIConfig struct {
	APIAddress                    string   `json:"apiAddress"`
	AccessControlAllowOrigin      []string `json:"accessControlAllowOrigin"`
	AccessControlAllowCredentials bool     `json:"accessControlAllowCredentials"`
	AccessControlAllowMethods     []string `json:"accessControlAllowMethods"`
}

func newDefaultAPIConfig() APIConfig {
	return APIConfig{
		APIAddress: "/ip4/127.0.0.1/tcp/0",
		AccessControlAllowOrigin: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AccessControlAllowMethods: []string{"GET", "POST", "PUT"},
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		App:     newDefaultAppConfig(),
		Chain:   newDefaultChainConfig(),
		Backend: newDefaultBackendConfig(),
		API:     newDefaultAPIConfig(),
	}
}

// Recognized environment overrides, applied after the file is read.
const (
	EnvNetwork      = "WALLET_NETWORK"
	EnvChainID      = "WALLET_CHAIN_ID"
	EnvRelayProject = "WALLET_RELAY_PROJECT"
	EnvAppName      = "WALLET_APP_NAME"
	EnvAppDesc      = "WALLET_APP_DESCRIPTION"
	EnvAppURL       = "WALLET_APP_URL"
	EnvAppIcon      = "WALLET_APP_ICON"
)

// ApplyEnv overlays recognized environment variables onto the config.
func (cfg *Config) ApplyEnv() error {
	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Chain.NetworkName = v
	}
	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "%s must be a decimal chain id", EnvChainID)
		}
		cfg.Chain.ChainID = id
	}
	if v := os.Getenv(EnvRelayProject); v != "" {
		cfg.Backend.ProjectID = v
	}
	if v := os.Getenv(EnvAppName); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv(EnvAppDesc); v != "" {
		cfg.App.Description = v
	}
	if v := os.Getenv(EnvAppURL); v != "" {
		cfg.App.URL = v
	}
	if v := os.Getenv(EnvAppIcon); v != "" {
		cfg.App.Icon = v
	}
	return nil
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	configString, err := json.MarshalIndent(*cfg, "", "\t")
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(f, string(configString))
	return err
}

// ReadFile reads a config file from disk.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	cfg := NewDefaultConfig()
	rawConfig, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(rawConfig) == 0 {
		return cfg, nil
	}

	err = json.Unmarshal(rawConfig, &cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Set sets the config sub-struct referenced by `key`, e.g. 'api.apiAddress'
// or 'chain' to the json key value pair encoded in jsonVal.
func (cfg *Config) Set(dottedKey string, jsonString string) error {
	if !json.Valid([]byte(jsonString)) {
		jsonBytes, _ := json.Marshal(jsonString)
		jsonString = string(jsonBytes)
	}

	if err := validate(dottedKey, jsonString); err != nil {
		return err
	}

	keys := strings.Split(dottedKey, ".")
	for i := len(keys) - 1; i >= 0; i-- {
		jsonString = fmt.Sprintf(`{ "%s": %s }`, keys[i], jsonString)
	}

	decoder := json.NewDecoder(strings.NewReader(jsonString))
	decoder.DisallowUnknownFields()

	return decoder.Decode(&cfg)
}

// Get gets the config sub-struct referenced by `key`, e.g. 'api.apiAddress'
func (cfg *Config) Get(key string) (interface{}, error) {
	v := reflect.Indirect(reflect.ValueOf(cfg))
	keyTags := strings.Split(key, ".")
OUTER:
	for j, keyTag := range keyTags {
		if v.Type().Kind() == reflect.Struct {
			for i := 0; i < v.NumField(); i++ {
				jsonTag := strings.Split(
					v.Type().Field(i).Tag.Get("json"),
					",")[0]
				if jsonTag == keyTag {
					v = v.Field(i)
					if j == len(keyTags)-1 {
						return v.Interface(), nil
					}
					v = reflect.Indirect(v) // only attempt one dereference
					continue OUTER
				}
			}
		}

		return nil, fmt.Errorf("key: %s invalid for config", key)
	}
	// Cannot get here as len(strings.Split(s, sep)) >= 1 with non-empty sep
	return nil, fmt.Errorf("empty key is invalid")
}

// validate runs validations on a given key and json string. validate uses the
// validators map defined at the top of this file to determine which validations
// to use for each key.
func validate(dottedKey string, jsonString string) error {
	var obj interface{}
	if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
		return err
	}
	// recursively validate sub-keys by partially unmarshalling
	if reflect.ValueOf(obj).Kind() == reflect.Map {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
			return err
		}
		for key := range obj {
			if err := validate(dottedKey+"."+key, string(obj[key])); err != nil {
				return err
			}
		}
		return nil
	}

	if validationFunc, present := Validators[dottedKey]; present {
		return validationFunc(dottedKey, jsonString)
	}

	return nil
}

// validateLettersOnly validates that a given value contains only letters. If it
// does not, an error is returned using the given key for the message.
func validateLettersOnly(key string, value string) error {
	if match, _ := regexp.MatchString("^\"[a-zA-Z]+\"$", value); !match {
		return errors.Errorf(`"%s" must only contain letters`, key)
	}
	return nil
}
