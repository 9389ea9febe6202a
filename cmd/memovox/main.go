package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memovox/memovox/internal/bus"
	"github.com/memovox/memovox/internal/config"
	"github.com/memovox/memovox/internal/daemon"
	"github.com/memovox/memovox/internal/summarize"
	"github.com/memovox/memovox/internal/transcriber"
	"github.com/memovox/memovox/internal/transcript"
	"github.com/memovox/memovox/internal/translate"
	"github.com/memovox/memovox/internal/tui"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "memovox",
	Short: "Meeting capture, live transcription and AI summaries",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		recordCmd(),
		pauseCmd(),
		resumeCmd(),
		stopCmd(),
		statusCmd(),
		versionCmd(),
		quitCmd(),
		configureCmd(),
		transcribeCmd(),
		summarizeCmd(),
		translateCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return daemon.New(manager).Run()
		},
	}
}

func recordCmd() *cobra.Command {
	var transcribe bool

	cmd := &cobra.Command{
		Use:     "record [path]",
		Aliases: []string{"start"},
		Short:   "Start a recording session",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			c := byte(bus.CmdStartRecording)
			if transcribe {
				c = bus.CmdStartWithTranscript
			}
			resp, err := bus.SendCommand(c, path)
			if err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcribe, "transcribe", false, "Enable live transcription alongside the recording")

	return cmd
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the active recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdPause, "")
			if err != nil {
				return fmt.Errorf("failed to pause recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused or interrupted recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdResume, "")
			if err != nil {
				return fmt.Errorf("failed to resume recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStop, "")
			if err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus, "")
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion, "")
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit, "")
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for memovox.
This will guide you through setting up:
- Provider API keys (Deepgram, OpenAI)
- Transcription settings
- Summarization and translation models
- Auto-resume and notification preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.DefaultConfig()
	} else if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func transcribeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a finished recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			adapter, err := transcriber.NewOpenAIBatchAdapter(transcriber.Config{
				Provider: "openai",
				APIKey:   cfg.ResolveAPIKey("openai"),
				Language: cfg.Transcription.Language,
				Model:    cfg.Transcription.BatchModel,
			})
			if err != nil {
				return err
			}

			segments, err := adapter.TranscribeFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("transcription failed: %w", err)
			}

			data, err := transcript.Encode(segments)
			if err != nil {
				return err
			}
			return writeOutput(output, data)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the transcript JSON to a file instead of stdout")

	return cmd
}

func summarizeCmd() *cobra.Command {
	var output, locale, title, notes string

	cmd := &cobra.Command{
		Use:   "summarize <transcript.json>",
		Short: "Summarize a transcript into structured meeting notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			segments, err := readTranscript(args[0])
			if err != nil {
				return err
			}
			if locale == "" {
				locale = cfg.Summarization.Locale
			}

			sc := summarize.DefaultConfig()
			if cfg.Summarization.Model != "" {
				sc.Model = cfg.Summarization.Model
			}
			if cfg.Summarization.MaxConcurrency > 0 {
				sc.MaxConcurrency = cfg.Summarization.MaxConcurrency
			}
			if cfg.Summarization.RequestTimeout > 0 {
				sc.RequestTimeout = cfg.Summarization.RequestTimeout
			}
			if cfg.Summarization.MaxChunkDuration > 0 {
				sc.Chunking.MaxChunkDuration = cfg.Summarization.MaxChunkDuration
			}
			if cfg.Summarization.OverlapDuration > 0 {
				sc.Chunking.OverlapDuration = cfg.Summarization.OverlapDuration
			}

			s, err := summarize.NewWithKey(cfg.ResolveAPIKey("openai"), sc)
			if err != nil {
				return err
			}

			summary, err := s.Summarize(cmd.Context(), segments, locale, title, notes)
			if err != nil {
				return fmt.Errorf("summarization failed: %w", err)
			}

			data, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(output, data)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the summary JSON to a file instead of stdout")
	cmd.Flags().StringVar(&locale, "locale", "", "Locale the summary is written in (defaults to config)")
	cmd.Flags().StringVar(&title, "title", "", "Meeting title passed as context")
	cmd.Flags().StringVar(&notes, "notes", "", "Extra user notes passed as context")

	return cmd
}

func translateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "translate <transcript.json> <target-language>",
		Short: "Translate a transcript preserving speakers and timings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			segments, err := readTranscript(args[0])
			if err != nil {
				return err
			}

			tc := translate.DefaultConfig()
			if cfg.Translation.Model != "" {
				tc.Model = cfg.Translation.Model
			}
			if cfg.Translation.MaxChunkChars > 0 {
				tc.MaxChunkChars = cfg.Translation.MaxChunkChars
			}
			if cfg.Translation.RequestTimeout > 0 {
				tc.RequestTimeout = cfg.Translation.RequestTimeout
			}
			if cfg.Translation.InterChunkDelay > 0 {
				tc.InterChunkDelay = cfg.Translation.InterChunkDelay
			}

			t, err := translate.NewWithKey(cfg.ResolveAPIKey("openai"), tc)
			if err != nil {
				return err
			}

			translated, err := t.Translate(cmd.Context(), segments, args[1])
			if err != nil {
				return fmt.Errorf("translation failed: %w", err)
			}

			data, err := transcript.Encode(translated)
			if err != nil {
				return err
			}
			return writeOutput(output, data)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the translated transcript to a file instead of stdout")

	return cmd
}

func readTranscript(path string) ([]transcript.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	segments, err := transcript.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return segments, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("written to %s\n", path)
	return nil
}
