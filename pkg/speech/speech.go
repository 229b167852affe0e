// Package speech converts recorded audio to text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	"github.com/openai/openai-go"
)

// Whisper transcribes whole recordings through the OpenAI audio API.
type Whisper struct {
	client *openai.Client
	model  openai.AudioModel
	logger *slog.Logger
}

// NewWhisper builds a transcriber. An empty model picks whisper-1.
func NewWhisper(client *openai.Client, model openai.AudioModel, logger *slog.Logger) *Whisper {
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Whisper{client: client, model: model, logger: logger}
}

// Transcribe sends the recording to the transcription endpoint and
// returns the recognized text. The filename's extension determines the
// upload content type.
func (w *Whisper) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: w.model,
		File:  openai.File(audio, filename, ct),
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe %s: %w", filename, err)
	}
	if resp.Text == "" {
		return "", errors.New("speech: transcribe: empty transcript")
	}
	w.logger.Debug("transcribed recording", "file", filename, "chars", len(resp.Text))
	return resp.Text, nil
}
