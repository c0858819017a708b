package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// VoiceState is the recorder state
type VoiceState string

const (
	VoiceIdle      VoiceState = "idle"
	VoiceRecording VoiceState = "recording"
)

// CaptureRequest describes the microphone stream the browser is about to send
type CaptureRequest struct {
	ContentType      string
	PermissionDenied bool
}

// AudioCapture is an acquired microphone stream
type AudioCapture interface {
	Write(p []byte) (int, error)
	Audio() []byte
	ContentType() string
	Release()
}

// AudioDevice hands out captures. Acquire fails with KindPermission when access is denied.
type AudioDevice interface {
	Acquire(req CaptureRequest) (AudioCapture, error)
}

// BufferDevice captures audio chunks uploaded by the browser into memory
type BufferDevice struct {
	MaxBytes int
}

// Acquire opens an in-memory capture
func (d BufferDevice) Acquire(req CaptureRequest) (AudioCapture, error) {
	if req.PermissionDenied {
		return nil, apperr.Permission("microphone access was denied; allow it in the browser settings to search by voice")
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "audio/webm"
	}
	return &bufferCapture{contentType: contentType, maxBytes: d.MaxBytes}, nil
}

type bufferCapture struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	contentType string
	maxBytes    int
	released    bool
}

func (c *bufferCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0, apperr.Conflict("recording already stopped")
	}
	if c.maxBytes > 0 && c.buf.Len()+len(p) > c.maxBytes {
		return 0, apperr.Validation("recording is too large")
	}
	return c.buf.Write(p)
}

func (c *bufferCapture) Audio() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func (c *bufferCapture) ContentType() string { return c.contentType }

func (c *bufferCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.buf = bytes.Buffer{}
}

// VoiceSubmitter receives transcripts as search submissions
type VoiceSubmitter interface {
	SubmitVoice(ctx context.Context, t model.Transcription) error
}

// VoiceStatus is a snapshot of the recorder
type VoiceStatus struct {
	State       VoiceState    `json:"state"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	MaxDuration time.Duration `json:"max_duration_ns"`
	LastError   string        `json:"last_error,omitempty"`
	Transcript  string        `json:"transcript,omitempty"`
}

// VoiceRecorder is the {idle, recording} state machine with a hard duration ceiling
type VoiceRecorder struct {
	mu sync.Mutex

	device      AudioDevice
	transcriber Transcriber
	submitter   VoiceSubmitter
	clock       Clock
	maxDuration time.Duration
	log         *slog.Logger

	state      VoiceState
	capture    AudioCapture
	ceiling    Timer
	startedAt  time.Time
	gen        uint64
	lastErr    error
	transcript string

	// Background is used for the automatic stop at the ceiling
	Background context.Context
	// OnAutoStop reports the outcome of a ceiling-triggered stop
	OnAutoStop func(err error)
}

// VoiceOptions wires a VoiceRecorder
type VoiceOptions struct {
	Device      AudioDevice
	Transcriber Transcriber
	Submitter   VoiceSubmitter
	Clock       Clock
	MaxDuration time.Duration
	Logger      *slog.Logger
}

// NewVoiceRecorder creates an idle recorder
func NewVoiceRecorder(opts VoiceOptions) *VoiceRecorder {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Device == nil {
		opts.Device = BufferDevice{}
	}
	return &VoiceRecorder{
		device:      opts.Device,
		transcriber: opts.Transcriber,
		submitter:   opts.Submitter,
		clock:       opts.Clock,
		maxDuration: opts.MaxDuration,
		log:         opts.Logger,
		state:       VoiceIdle,
		Background:  context.Background(),
	}
}

// Start acquires the microphone and arms the ceiling timer
func (r *VoiceRecorder) Start(req CaptureRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == VoiceRecording {
		return apperr.Conflict("already recording").WithOp("voice.Start")
	}

	capture, err := r.device.Acquire(req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Internal("failed to open microphone", err)
		}
		r.lastErr = err
		return err
	}

	r.gen++
	gen := r.gen
	r.state = VoiceRecording
	r.capture = capture
	r.startedAt = r.clock.Now()
	r.lastErr = nil
	r.transcript = ""
	r.ceiling = r.clock.AfterFunc(r.maxDuration, func() { r.autoStop(gen) })
	return nil
}

// Write appends a captured audio chunk
func (r *VoiceRecorder) Write(chunk []byte) error {
	r.mu.Lock()
	capture := r.capture
	recording := r.state == VoiceRecording
	r.mu.Unlock()

	if !recording {
		return apperr.Conflict("not recording").WithOp("voice.Write")
	}
	_, err := capture.Write(chunk)
	return err
}

// Stop releases the microphone, transcribes the audio and submits the transcript.
// On transcription failure nothing is dispatched and the recorder stays idle.
func (r *VoiceRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != VoiceRecording {
		r.mu.Unlock()
		return apperr.Conflict("not recording").WithOp("voice.Stop")
	}
	capture := r.release()
	r.mu.Unlock()

	audio := capture.Audio()
	contentType := capture.ContentType()
	capture.Release()

	err := r.transcribeAndSubmit(ctx, audio, contentType)

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	return err
}

func (r *VoiceRecorder) transcribeAndSubmit(ctx context.Context, audio []byte, contentType string) error {
	if len(audio) == 0 {
		return apperr.Validation("no audio was captured").WithOp("voice.Stop")
	}
	if r.transcriber == nil {
		return apperr.Internal("voice search is not configured", nil)
	}

	t, err := r.transcriber.Transcribe(ctx, audio, contentType)
	if err != nil {
		r.log.Warn("transcription failed", "error", err)
		return err
	}

	r.mu.Lock()
	r.transcript = t.Transcript
	r.mu.Unlock()

	if r.submitter == nil {
		return nil
	}
	return r.submitter.SubmitVoice(ctx, *t)
}

// Cancel releases the microphone and discards the audio
func (r *VoiceRecorder) Cancel() {
	r.mu.Lock()
	if r.state != VoiceRecording {
		r.mu.Unlock()
		return
	}
	capture := r.release()
	r.mu.Unlock()

	capture.Release()
}

// release moves to idle and returns the capture. Caller holds r.mu.
func (r *VoiceRecorder) release() AudioCapture {
	capture := r.capture
	if r.ceiling != nil {
		r.ceiling.Stop()
		r.ceiling = nil
	}
	r.gen++
	r.capture = nil
	r.state = VoiceIdle
	return capture
}

func (r *VoiceRecorder) autoStop(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.state != VoiceRecording {
		r.mu.Unlock()
		return
	}
	ctx := r.Background
	hook := r.OnAutoStop
	r.mu.Unlock()

	r.log.Info("recording reached the duration ceiling", "max", r.maxDuration)
	err := r.Stop(ctx)
	if hook != nil {
		hook(err)
	}
}

// Status returns a snapshot of the recorder
func (r *VoiceRecorder) Status() VoiceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := VoiceStatus{State: r.state, MaxDuration: r.maxDuration, Transcript: r.transcript}
	if r.state == VoiceRecording {
		status.Elapsed = r.clock.Now().Sub(r.startedAt)
	}
	if r.lastErr != nil {
		status.LastError = r.lastErr.Error()
	}
	return status
}
