package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/memovox/memovox/internal/bus"
	"github.com/memovox/memovox/internal/config"
	"github.com/memovox/memovox/internal/gate"
	"github.com/memovox/memovox/internal/notify"
	"github.com/memovox/memovox/internal/session"
	"github.com/memovox/memovox/internal/transcriber"
)

type Daemon struct {
	mu       sync.Mutex
	manager  *config.Manager
	notifier notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	coordinator *session.Coordinator
}

func New(manager *config.Manager) *Daemon {
	cfg := manager.GetConfig()

	notifier := notify.Notifier(notify.Nop{})
	if cfg.Notifications.Enabled {
		notifier = notify.ForType(cfg.Notifications.Type)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		manager:  manager,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("daemon: config watching disabled: %v", err)
	}
	defer d.manager.Stop()

	coordinator := d.buildCoordinator()
	d.mu.Lock()
	d.coordinator = coordinator
	d.mu.Unlock()
	go d.consumeEvents(coordinator)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("daemon: received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("daemon: started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("daemon: shutdown requested")
				d.shutdown()
				return nil
			}
			log.Printf("daemon: accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) buildCoordinator() *session.Coordinator {
	cfg := d.manager.GetConfig()

	sc := session.Config{
		AutoResumeEnabled:     cfg.Session.AutoResumeEnabled,
		MaxAutoResumeAttempts: cfg.Session.MaxAutoResumeAttempts,
	}
	tc := transcriber.Config{
		Provider: cfg.Transcription.Provider,
		APIKey:   cfg.ResolveAPIKey(cfg.Transcription.Provider),
		Language: cfg.Transcription.Language,
		Model:    cfg.Transcription.Model,
		Endpoint: cfg.Transcription.Endpoint,
	}
	return session.NewDefault(sc, gate.New(), tc, d.notifier)
}

// shutdown stops whatever session is live so the audio file is always
// finalized on daemon exit.
func (d *Daemon) shutdown() {
	d.mu.Lock()
	coordinator := d.coordinator
	d.mu.Unlock()
	if coordinator == nil {
		return
	}
	switch coordinator.Status() {
	case session.Idle:
	default:
		if _, err := coordinator.StopRecording(); err != nil {
			log.Printf("daemon: stop on shutdown: %v", err)
		}
	}
}

func (d *Daemon) consumeEvents(coordinator *session.Coordinator) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev := <-coordinator.Events():
			switch ev.Kind {
			case session.EventError:
				log.Printf("daemon: session error: %v", ev.Err)
				go d.notifier.Error(ev.Err.Error())
			case session.EventAutoResumeFailed:
				log.Printf("daemon: auto-resume attempt %d failed: %v", ev.Attempt, ev.Err)
				go d.notifier.Error(fmt.Sprintf("resume failed (attempt %d)", ev.Attempt))
			case session.EventPowerUpdate:
				// metering is noisy, keep it off the log
			default:
				log.Printf("daemon: event %s", ev.Kind)
			}
		}
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("daemon: client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	line = strings.TrimRight(line, "\n")
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]
	arg := strings.TrimSpace(line[1:])

	d.mu.Lock()
	coordinator := d.coordinator
	d.mu.Unlock()

	switch cmd {
	case bus.CmdStartRecording:
		d.startRecording(c, coordinator, arg, false)
	case bus.CmdStartWithTranscript:
		d.startRecording(c, coordinator, arg, true)
	case bus.CmdPause:
		if err := coordinator.PauseRecording(); err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		fmt.Fprint(c, "OK paused\n")
	case bus.CmdResume:
		d.resume(c, coordinator)
	case bus.CmdStop:
		duration, err := coordinator.StopRecording()
		if err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		fmt.Fprintf(c, "OK stopped duration=%s\n", duration.Round(time.Millisecond))
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s\n", coordinator.Status())
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("daemon: unknown command: %c", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) startRecording(c net.Conn, coordinator *session.Coordinator, arg string, transcription bool) {
	path := arg
	if path == "" {
		path = d.defaultRecordingPath()
	}

	var err error
	if transcription {
		err = coordinator.StartRecordingWithTranscription(d.ctx, path)
	} else {
		err = coordinator.StartRecording(d.ctx, path)
	}
	if err != nil {
		fmt.Fprintf(c, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(c, "OK recording path=%s\n", path)
}

// resume also doubles as the manual escape hatch after a failed
// auto-resume: in the interrupted state it forces restoration.
func (d *Daemon) resume(c net.Conn, coordinator *session.Coordinator) {
	var err error
	if coordinator.Status() == session.Interrupted {
		err = coordinator.ForceResumeAfterInterruption(d.ctx)
	} else {
		err = coordinator.ResumeRecording()
	}
	if err != nil {
		fmt.Fprintf(c, "ERR %v\n", err)
		return
	}
	fmt.Fprint(c, "OK resumed\n")
}

func (d *Daemon) defaultRecordingPath() string {
	dir := d.manager.GetConfig().Recording.Directory
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, "Recordings")
	}
	name := time.Now().Format("20060102-150405") + ".wav"
	return filepath.Join(dir, name)
}
