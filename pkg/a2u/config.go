package a2u

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

type networkParams struct {
	passphrase string
	apiURL     string
	horizonURL string
}

var networks = map[Network]networkParams{
	Mainnet: {
		passphrase: pi.NetworkMainnet,
		apiURL:     "https://api.mainnet.minepi.com",
		horizonURL: "https://api.mainnet.minepi.com",
	},
	Testnet: {
		passphrase: pi.NetworkTestnet,
		apiURL:     "https://api.testnet.minepi.com",
		horizonURL: "https://api.testnet.minepi.com",
	},
}

// ParseNetwork accepts either the network name or its passphrase.
func ParseNetwork(network string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case string(Mainnet), strings.ToLower(pi.NetworkMainnet):
		return Mainnet, nil
	case string(Testnet), strings.ToLower(pi.NetworkTestnet):
		return Testnet, nil
	default:
		return "", &ConfigurationError{
			Field:  "network",
			Reason: fmt.Sprintf("%q is not one of mainnet, testnet", network),
		}
	}
}

func (n Network) Passphrase() string {
	return networks[n].passphrase
}

// Config gathers everything needed to build an initialized Client.
type Config struct {
	ApiKey string
	// Seed is the secret seed of the app wallet. When empty it is derived
	// from Mnemonic.
	Seed     string
	Mnemonic string
	Network  string
	// ApiURL and HorizonURL override the defaults of the network.
	ApiURL     string
	HorizonURL string
}

func (c Config) seed() (string, error) {
	if len(c.Seed) > 0 || len(c.Mnemonic) <= 0 {
		return c.Seed, nil
	}
	seed, err := stellar.SeedFromMnemonic(c.Mnemonic)
	if err != nil {
		return "", &ConfigurationError{Field: "mnemonic", Reason: err.Error()}
	}
	return seed, nil
}

type Option func(*Client)

func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithApiURL(url string) Option {
	return func(c *Client) {
		c.apiURL = url
	}
}

func WithHorizonURL(url string) Option {
	return func(c *Client) {
		c.horizonURL = url
	}
}

// WithHorizon replaces the horizon client used to submit transactions.
func WithHorizon(horizon stellar.Horizon) Option {
	return func(c *Client) {
		c.horizon = horizon
	}
}
