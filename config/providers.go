package config

import (
	"fmt"
	"os"
)

type ProviderConfig struct {
	ApiUrl string
	ApiKey string
	Model  string
}

func getProviderConfig(prefix string) (*ProviderConfig, error) {
	apiUrl := os.Getenv(prefix + "_API_URL")
	if apiUrl == "" {
		return nil, fmt.Errorf("%s_API_URL must be set", prefix)
	}
	apiKey := os.Getenv(prefix + "_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%s_API_KEY must be set", prefix)
	}
	return &ProviderConfig{
		ApiUrl: apiUrl,
		ApiKey: apiKey,
		Model:  os.Getenv(prefix + "_MODEL"),
	}, nil
}

func GetScriptProviderConfig() (*ProviderConfig, error) {
	return getProviderConfig("SCRIPT_PROVIDER")
}

func GetImageGridProviderConfig() (*ProviderConfig, error) {
	return getProviderConfig("IMAGE_PROVIDER")
}

func GetVideoProviderConfig() (*ProviderConfig, error) {
	return getProviderConfig("VIDEO_PROVIDER")
}

type LinkResolverConfig struct {
	ApiUrl string
	Token  string
}

func GetLinkResolverConfig() (*LinkResolverConfig, error) {
	apiUrl := os.Getenv("LINK_RESOLVER_URL")
	if apiUrl == "" {
		return nil, fmt.Errorf("LINK_RESOLVER_URL must be set")
	}

	return &LinkResolverConfig{
		ApiUrl: apiUrl,
		Token:  os.Getenv("LINK_RESOLVER_TOKEN"),
	}, nil
}
