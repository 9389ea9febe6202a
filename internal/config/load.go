package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	memovoxDir := filepath.Join(configDir, "memovox")
	if err := os.MkdirAll(memovoxDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(memovoxDir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run memovox configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("config: loading configuration from %s", configPath)
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	config.applyDefaults()

	log.Printf("config: configuration loaded successfully")
	return &config, nil
}

// applyDefaults fills zero values with the shipped defaults so a sparse
// user config stays valid.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = d.Recording.SampleRate
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = d.Recording.Channels
	}
	if c.Recording.FramesPerBuffer == 0 {
		c.Recording.FramesPerBuffer = d.Recording.FramesPerBuffer
	}
	if c.Recording.ChannelBufferSize == 0 {
		c.Recording.ChannelBufferSize = d.Recording.ChannelBufferSize
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = d.Transcription.Provider
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = d.Transcription.Model
	}
	if c.Transcription.Endpoint == "" {
		c.Transcription.Endpoint = d.Transcription.Endpoint
	}
	if c.Transcription.BatchModel == "" {
		c.Transcription.BatchModel = d.Transcription.BatchModel
	}
	if c.Session.MaxAutoResumeAttempts == 0 {
		c.Session.MaxAutoResumeAttempts = d.Session.MaxAutoResumeAttempts
	}
	if c.Summarization.Model == "" {
		c.Summarization.Model = d.Summarization.Model
	}
	if c.Summarization.Locale == "" {
		c.Summarization.Locale = d.Summarization.Locale
	}
	if c.Summarization.MaxConcurrency == 0 {
		c.Summarization.MaxConcurrency = d.Summarization.MaxConcurrency
	}
	if c.Summarization.RequestTimeout == 0 {
		c.Summarization.RequestTimeout = d.Summarization.RequestTimeout
	}
	if c.Summarization.MaxChunkDuration == 0 {
		c.Summarization.MaxChunkDuration = d.Summarization.MaxChunkDuration
	}
	if c.Summarization.OverlapDuration == 0 {
		c.Summarization.OverlapDuration = d.Summarization.OverlapDuration
	}
	if c.Translation.Model == "" {
		c.Translation.Model = d.Translation.Model
	}
	if c.Translation.MaxChunkChars == 0 {
		c.Translation.MaxChunkChars = d.Translation.MaxChunkChars
	}
	if c.Translation.RequestTimeout == 0 {
		c.Translation.RequestTimeout = d.Translation.RequestTimeout
	}
	if c.Translation.InterChunkDelay == 0 {
		c.Translation.InterChunkDelay = d.Translation.InterChunkDelay
	}
}

func Save(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}
