// Package tui holds the interactive configuration wizard.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/memovox/memovox/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionProviders     ConfigSection = "providers"
	SectionTranscription ConfigSection = "transcription"
	SectionSummarization ConfigSection = "summarization"
	SectionTranslation   ConfigSection = "translation"
	SectionSession       ConfigSection = "session"
	SectionNotifications ConfigSection = "notifications"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

var providerDisplayNames = map[string]string{
	"openai":   "OpenAI",
	"deepgram": "Deepgram",
}

// Run starts the TUI configuration wizard
func Run(existingConfig *config.Config) (*ConfigureResult, error) {
	if existingConfig == nil {
		existingConfig = config.DefaultConfig()
	}
	if hasUserChanges(existingConfig) {
		return runEditExisting(existingConfig)
	}
	return runFreshInstall(existingConfig)
}

func hasUserChanges(cfg *config.Config) bool {
	for _, pc := range cfg.Providers {
		if pc.APIKey != "" {
			return true
		}
	}
	return false
}

// runFreshInstall walks every section once, in order
func runFreshInstall(cfg *config.Config) (*ConfigureResult, error) {
	fmt.Println(Logo())
	fmt.Println()
	fmt.Println(StyleMuted.Render("Meeting capture, transcription and summaries"))
	fmt.Println()

	if err := editProviders(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editTranscription(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editSummarization(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editSession(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editNotifications(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}

	confirmed, err := showSummary(cfg)
	if err != nil || !confirmed {
		return &ConfigureResult{Cancelled: true}, nil
	}
	return &ConfigureResult{Config: cfg, Cancelled: false}, nil
}

// runEditExisting runs the menu-based edit flow for existing configs
func runEditExisting(cfg *config.Config) (*ConfigureResult, error) {
	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection()
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg, Cancelled: false}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionProviders:
			if err := editProviders(cfg); err != nil {
				continue
			}
		case SectionTranscription:
			if err := editTranscription(cfg); err != nil {
				continue
			}
		case SectionSummarization:
			if err := editSummarization(cfg); err != nil {
				continue
			}
		case SectionTranslation:
			if err := editTranslation(cfg); err != nil {
				continue
			}
		case SectionSession:
			if err := editSession(cfg); err != nil {
				continue
			}
		case SectionNotifications:
			if err := editNotifications(cfg); err != nil {
				continue
			}
		}
	}
}

func selectSection() (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption("Provider API Keys", SectionProviders),
		huh.NewOption("Transcription", SectionTranscription),
		huh.NewOption("Summarization", SectionSummarization),
		huh.NewOption("Translation", SectionTranslation),
		huh.NewOption("Session & Auto-Resume", SectionSession),
		huh.NewOption("Notifications", SectionNotifications),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editProviders(cfg *config.Config) error {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}

	for _, name := range []string{"deepgram", "openai"} {
		key := cfg.Providers[name].APIKey
		title := fmt.Sprintf("%s API Key", providerDisplayNames[name])
		desc := "Leave empty to read from the environment"
		if key != "" {
			desc = fmt.Sprintf("Currently: %s", maskAPIKey(key))
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(title).
					Description(desc).
					EchoMode(huh.EchoModePassword).
					Value(&key),
			),
		).WithTheme(getTheme())

		if err := form.Run(); err != nil {
			return err
		}
		if key != "" {
			cfg.Providers[name] = config.ProviderConfig{APIKey: key}
		}
	}
	return nil
}

func editTranscription(cfg *config.Config) error {
	language := cfg.Transcription.Language
	model := cfg.Transcription.Model

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Streaming Model").
				Description("Deepgram model used for live transcription").
				Options(
					huh.NewOption("Nova 3 - best accuracy", "nova-3"),
					huh.NewOption("Nova 2 - lower latency", "nova-2"),
				).
				Value(&model),
			huh.NewInput().
				Title("Language").
				Description("ISO 639-1 code, e.g. en, it, de").
				Value(&language),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Transcription.Model = model
	cfg.Transcription.Language = language
	return nil
}

func editSummarization(cfg *config.Config) error {
	model := cfg.Summarization.Model
	locale := cfg.Summarization.Locale

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Summarization Model").
				Options(
					huh.NewOption("GPT-4o mini - fast and cheap", "gpt-4o-mini"),
					huh.NewOption("GPT-4o - highest quality", "gpt-4o"),
				).
				Value(&model),
			huh.NewInput().
				Title("Summary Locale").
				Description("Language the summary is written in, e.g. en, it").
				Value(&locale),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Summarization.Model = model
	cfg.Summarization.Locale = locale
	return nil
}

func editTranslation(cfg *config.Config) error {
	model := cfg.Translation.Model

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Translation Model").
				Options(
					huh.NewOption("GPT-4o mini - fast and cheap", "gpt-4o-mini"),
					huh.NewOption("GPT-4o - highest quality", "gpt-4o"),
				).
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Translation.Model = model
	return nil
}

func editSession(cfg *config.Config) error {
	enabled := cfg.Session.AutoResumeEnabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Auto-resume after interruptions?").
				Description("Restore recording and transcription when another app releases the microphone").
				Value(&enabled),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Session.AutoResumeEnabled = enabled
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable desktop notifications?").
				Description("Show notifications for recording status changes").
				Value(&enabled),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Transcription: %s / %s (%s)\n",
		cfg.Transcription.Provider, cfg.Transcription.Model, cfg.Transcription.Language))
	b.WriteString(fmt.Sprintf("Summarization: %s, locale %s\n",
		cfg.Summarization.Model, cfg.Summarization.Locale))
	b.WriteString(fmt.Sprintf("Translation:   %s\n", cfg.Translation.Model))
	b.WriteString(fmt.Sprintf("Auto-resume:   %v (max %d attempts)\n",
		cfg.Session.AutoResumeEnabled, cfg.Session.MaxAutoResumeAttempts))
	b.WriteString(fmt.Sprintf("Notifications: %v", cfg.Notifications.Enabled))

	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Description(b.String()).
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
