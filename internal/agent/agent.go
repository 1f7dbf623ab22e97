package agent

import (
	"context"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"spoky/internal/action"
	"spoky/internal/audio"
	"spoky/internal/cloud"
	"spoky/internal/config"
	"spoky/internal/dispatch"
	"spoky/internal/insight"
	"spoky/internal/ipc"
	"spoky/internal/notify"
	"spoky/internal/session"
	"spoky/internal/sink"
	"spoky/internal/speech"
	"spoky/internal/store"
	"spoky/internal/tts"
)

// Agent wires the session logger, persistence gateway, dispatcher, and
// recognition listener together and owns the process lifecycle.
type Agent struct {
	cfg    *config.Config
	userID string

	logger     *session.Logger
	fileSink   *sink.File
	gateway    store.Gateway
	forwarder  *cloud.Forwarder
	dispatcher *dispatch.Dispatcher
	recorder   *audio.Recorder
	recognizer speech.Recognizer
	listener   *speech.Listener
	classifier *insight.Classifier

	// set by the trigger control command: the next utterance bypasses
	// the activation phrase gate
	bypassGate atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs the agent from configuration. Any enabled subsystem that
// cannot be brought up fails construction; nothing is silently disabled.
func New(cfg *config.Config, userID string) (*Agent, error) {
	a := &Agent{
		cfg:    cfg,
		userID: userID,
		stopCh: make(chan struct{}),
	}

	fileSink, err := sink.NewFile(cfg.Logging.Dir)
	if err != nil {
		return nil, fmt.Errorf("open action log sink: %w", err)
	}
	a.fileSink = fileSink

	// dynamo keeps the durable copy in the cloud pipeline, so no local
	// gateway is opened; config validation already required cloud.enabled.
	if cfg.Database.Type != "dynamo" {
		gateway, err := store.Open(cfg.Database.Type, cfg.Database.ConnectionString)
		if err != nil {
			a.fileSink.Close()
			return nil, fmt.Errorf("open persistence gateway: %w", err)
		}
		a.gateway = gateway
	}

	if cfg.Cloud.Enabled {
		fwd, err := cloud.New(cfg.Cloud)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("connect cloud forwarder: %w", err)
		}
		a.forwarder = fwd
	}

	sinks := session.MultiSink{a.fileSink}
	if a.gateway != nil {
		sinks = append(sinks, gatewaySink{gw: a.gateway})
	}
	if a.forwarder != nil {
		sinks = append(sinks, cloudSink{fwd: a.forwarder, all: a.gateway == nil})
	}
	a.logger = session.NewLogger(userID, sinks)

	a.dispatcher = dispatch.New()
	a.dispatcher.OnPanic(func(trigger string, err error) {
		a.logger.LogError("handler_panic", err.Error(), map[string]any{"trigger": trigger})
	})

	if cfg.Voice.Enabled {
		rec := audio.NewRecorder(cfg.Voice.SampleRate)
		if err := rec.Init(); err != nil {
			a.closePartial()
			return nil, fmt.Errorf("init audio device: %w", err)
		}
		a.recorder = rec

		whisper, err := speech.NewWhisper(cfg.Voice.ModelPath, speech.WhisperOptions{
			Language: cfg.Voice.Language,
		})
		if err != nil {
			a.recorder.Close()
			a.closePartial()
			return nil, fmt.Errorf("load speech model: %w", err)
		}
		a.recognizer = whisper
		a.listener = speech.NewListener(whisper, rec)
	}

	if cfg.Insight.Enabled {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			a.closePartial()
			return nil, fmt.Errorf("OPENAI_API_KEY not set but insight.enabled is true")
		}
		client := openai.NewClient(option.WithAPIKey(apiKey))
		a.classifier = insight.NewClassifier(client, cfg.Insight.Model)
	}

	return a, nil
}

// Run starts a session and blocks until a signal or a stop command.
func (a *Agent) Run() error {
	sess, err := a.logger.Start("")
	if err != nil {
		return err
	}
	log.Info("Session started", "session", sess.ID, "user", a.userID)

	a.registerCommands()

	ln, err := ipc.StartServer(a.handleControl)
	if err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer a.closeControl(ln)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var transcripts <-chan speech.Transcript
	if a.listener != nil {
		a.listener.Start()
		transcripts = a.listener.Transcripts()
		log.Info("Listening", "activation_phrase", a.cfg.Voice.ActivationPhrase)
	}

	for {
		select {
		case sig := <-sigCh:
			log.Info("Signal received", "signal", sig.String())
			a.shutdown()
			return nil
		case <-a.stopCh:
			a.shutdown()
			return nil
		case tr, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			a.handleTranscript(tr)
		}
	}
}

// Stop requests a graceful shutdown. Safe from any goroutine.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Shutdown ordering reverses acquisition: listener stop, session end,
// cloud flush, gateway close.
func (a *Agent) shutdown() {
	log.Info("Shutting down")

	if a.listener != nil {
		a.listener.Stop()
		<-a.listener.Done()
	}
	if a.recognizer != nil {
		a.recognizer.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}

	if _, err := a.logger.End(); err != nil {
		log.Warn("Failed to end session", "err", err)
	}

	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			log.Warn("Failed to close cloud forwarder", "err", err)
		}
	}
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			log.Warn("Failed to close gateway", "err", err)
		}
	}
	if err := a.fileSink.Close(); err != nil {
		log.Warn("Failed to close log sink", "err", err)
	}

	log.Info("Shutdown complete")
}

func (a *Agent) closePartial() {
	if a.forwarder != nil {
		a.forwarder.Close()
	}
	if a.gateway != nil {
		a.gateway.Close()
	}
	if a.fileSink != nil {
		a.fileSink.Close()
	}
}

func (a *Agent) closeControl(ln net.Listener) {
	ln.Close()
	os.Remove(ipc.SocketPath)
}

func (a *Agent) handleTranscript(tr speech.Transcript) {
	text := strings.ToLower(strings.TrimSpace(tr.Text))
	log.Info("Transcribed", "text", text, "confidence", tr.Confidence)

	phrase := strings.ToLower(a.cfg.Voice.ActivationPhrase)
	if phrase != "" && !a.bypassGate.Swap(false) {
		if !strings.Contains(text, phrase) {
			log.Debug("No activation phrase, ignoring", "text", text)
			return
		}
	}

	if a.cfg.Voice.BeepPath != "" {
		if err := notify.Beep(a.cfg.Voice.BeepPath); err != nil {
			log.Warn("Beep failed", "err", err)
		}
	}

	matched := a.dispatcher.Dispatch(text)

	details := map[string]any{
		"recognized_text": text,
		"confidence":      tr.Confidence,
		"matched":         matched,
	}
	if a.classifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		label, err := a.classifier.Classify(ctx, text)
		cancel()
		if err != nil {
			log.Warn("Sentiment classification failed", "err", err)
		} else {
			details["sentiment"] = string(label)
		}
	}

	if _, err := a.logger.Log(action.VoiceCommand, details, action.StatusSuccess); err != nil {
		log.Error("Failed to log voice command", "err", err)
	}
}

func (a *Agent) handleControl(req ipc.Request) ipc.Response {
	switch req.Cmd {
	case "trigger":
		if a.listener == nil {
			return ipc.Response{OK: false, Message: "voice recognition is disabled"}
		}
		a.bypassGate.Store(true)
		return ipc.Response{OK: true, Message: "next utterance will be handled"}
	case "status":
		return ipc.Response{OK: true, Message: a.statusLine()}
	case "stop":
		a.Stop()
		return ipc.Response{OK: true, Message: "stopping"}
	default:
		log.Warn("Unknown control command", "cmd", req.Cmd)
		return ipc.Response{OK: false, Message: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (a *Agent) statusLine() string {
	st := a.logger.Stats()
	return fmt.Sprintf("user=%s session=%s actions=%d duration=%s",
		st.UserID, st.SessionID, st.Total, st.Duration.Round(time.Second))
}

func (a *Agent) registerCommands() {
	a.dispatcher.Register("hello spoky", func() {
		a.say("Hello! Spoky is listening and ready to help.")
	})
	a.dispatcher.Register("goodbye spoky", func() {
		a.say("Goodbye!")
		a.Stop()
	})
	a.dispatcher.Register("status", func() {
		a.say(a.statusLine())
	})
	a.dispatcher.Register("help", func() {
		a.say("Known commands: " + strings.Join(a.dispatcher.Triggers(), ", "))
	})
}

func (a *Agent) say(text string) {
	log.Info(text)
	if !a.cfg.Voice.SpokenReplies {
		return
	}
	if err := tts.Speak(text, a.cfg.Voice.Language); err != nil {
		log.Warn("Failed to voice reply", "err", err)
	}
}

// gatewaySink forwards acknowledged records to the durable store.
type gatewaySink struct {
	gw store.Gateway
}

func (s gatewaySink) Append(rec action.Record) error {
	_, err := s.gw.Write(context.Background(), rec)
	return err
}

// cloudSink forwards records to the cloud pipeline: every record when the
// pipeline is the durable store (dynamo mode), otherwise only the
// analytics-worthy subset.
type cloudSink struct {
	fwd *cloud.Forwarder
	all bool
}

func (s cloudSink) Append(rec action.Record) error {
	if s.all {
		s.fwd.Forward(rec)
		return nil
	}
	switch rec.Type {
	case action.VoiceCommand, action.Error:
		s.fwd.Forward(rec)
	}
	return nil
}
