package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const serverReadyTimeout = 30 * time.Second

// WhisperConfig configures the whisper.cpp client.
//
// When ServerURL is set the client talks to an already-running
// whisper-server. Otherwise BinPath is spawned lazily on first use with
// ModelPath loaded, listening on Port.
type WhisperConfig struct {
	ServerURL string
	BinPath   string
	ModelPath string
	Port      int
	Language  string
	Timeout   time.Duration
}

// Whisper transcribes audio through the whisper-server HTTP API. The server
// process starts on the first Transcribe call so service startup never blocks
// on model loading; the start is once-guarded, so concurrent first callers
// share one initialization and its outcome.
type Whisper struct {
	cfg    WhisperConfig
	client *http.Client
	logger *slog.Logger

	startOnce sync.Once
	startErr  error
	baseURL   string
	cmd       *exec.Cmd
}

// NewWhisper constructs a Whisper client. The engine is not contacted until
// the first transcription.
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) *Whisper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Whisper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

var _ Transcriber = (*Whisper)(nil)

// Transcribe sends the audio file to whisper-server and returns the trimmed
// transcript. An empty transcript is reported as ErrNoSpeech.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := w.ensureServer(); err != nil {
		return "", err
	}

	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio"+extOrDefault(audioPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	fields := map[string]string{
		"response_format": "json",
		"no_timestamps":   "true",
		"temperature":     "0.00",
	}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("whisper-server returned status %d: %s", resp.StatusCode, detail)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// Close stops the spawned whisper-server process, if any.
func (w *Whisper) Close() error {
	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}
	if err := w.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("stop whisper-server: %w", err)
	}
	return nil
}

func (w *Whisper) ensureServer() error {
	w.startOnce.Do(func() {
		if url := strings.TrimRight(w.cfg.ServerURL, "/"); url != "" {
			w.baseURL = url
			return
		}
		w.startErr = w.startServer()
	})
	return w.startErr
}

func (w *Whisper) startServer() error {
	if info, err := os.Stat(w.cfg.BinPath); err != nil || info.IsDir() {
		return fmt.Errorf("locate whisper-server binary %q: %w", w.cfg.BinPath, err)
	}

	args := []string{
		"--model", w.cfg.ModelPath,
		"--host", "127.0.0.1",
		"--port", fmt.Sprintf("%d", w.cfg.Port),
	}
	cmd := exec.Command(w.cfg.BinPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start whisper-server: %w", err)
	}
	go func() {
		// Reap the child; exit status is only interesting in logs.
		if err := cmd.Wait(); err != nil && w.logger != nil {
			w.logger.Warn("whisper-server exited", "error", err)
		}
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", w.cfg.Port)
	if err := waitForServer(baseURL, serverReadyTimeout); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("whisper-server did not become ready: %w", err)
	}

	w.cmd = cmd
	w.baseURL = baseURL
	if w.logger != nil {
		w.logger.Info("whisper-server started", "model", w.cfg.ModelPath, "port", w.cfg.Port)
	}
	return nil
}

func waitForServer(baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("no response from %s within %s", baseURL, timeout)
}

func extOrDefault(path string) string {
	if ext := filepath.Ext(path); len(ext) > 1 {
		return ext
	}
	return ".wav"
}
