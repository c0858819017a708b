package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

type recordingSubmitter struct {
	submitted []model.Transcription
}

func (s *recordingSubmitter) SubmitVoice(_ context.Context, t model.Transcription) error {
	s.submitted = append(s.submitted, t)
	return nil
}

// trackingDevice remembers whether its capture was released
type trackingDevice struct {
	BufferDevice
	last *bufferCapture
}

func (d *trackingDevice) Acquire(req CaptureRequest) (AudioCapture, error) {
	c, err := d.BufferDevice.Acquire(req)
	if err != nil {
		return nil, err
	}
	d.last = c.(*bufferCapture)
	return c, nil
}

func (d *trackingDevice) released() bool {
	d.last.mu.Lock()
	defer d.last.mu.Unlock()
	return d.last.released
}

func newVoiceFixture() (*VoiceRecorder, *manualClock, *fakeBackend, *recordingSubmitter, *trackingDevice) {
	clock := newManualClock()
	backend := &fakeBackend{}
	submitter := &recordingSubmitter{}
	device := &trackingDevice{}
	r := NewVoiceRecorder(VoiceOptions{
		Device:      device,
		Transcriber: backend,
		Submitter:   submitter,
		Clock:       clock,
		MaxDuration: 60 * time.Second,
	})
	return r, clock, backend, submitter, device
}

func TestVoiceRecorder_StopTranscribesAndSubmits(t *testing.T) {
	r, clock, backend, submitter, device := newVoiceFixture()

	require.NoError(t, r.Start(CaptureRequest{ContentType: "audio/ogg"}))
	assert.Equal(t, VoiceRecording, r.Status().State)
	require.NoError(t, r.Write([]byte("chunk-1")))
	require.NoError(t, r.Write([]byte("chunk-2")))
	clock.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, r.Status().Elapsed)

	require.NoError(t, r.Stop(context.Background()))

	assert.True(t, device.released(), "microphone released on stop")
	assert.Equal(t, [][]byte{[]byte("chunk-1chunk-2")}, backend.transcribed)
	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "wireless earbuds", submitter.submitted[0].Transcript)
	assert.Equal(t, VoiceIdle, r.Status().State)
}

func TestVoiceRecorder_CeilingAutoStops(t *testing.T) {
	r, clock, _, submitter, device := newVoiceFixture()

	var autoStopErr error
	stopped := false
	r.OnAutoStop = func(err error) { stopped, autoStopErr = true, err }

	require.NoError(t, r.Start(CaptureRequest{}))
	require.NoError(t, r.Write([]byte("audio")))

	clock.Advance(59 * time.Second)
	assert.Equal(t, VoiceRecording, r.Status().State)

	clock.Advance(time.Second)
	assert.True(t, stopped)
	require.NoError(t, autoStopErr)
	assert.Equal(t, VoiceIdle, r.Status().State)
	assert.True(t, device.released())
	assert.Len(t, submitter.submitted, 1)
}

func TestVoiceRecorder_TranscriptionFailureDispatchesNothing(t *testing.T) {
	r, _, backend, submitter, _ := newVoiceFixture()
	backend.transcribeFn = func(context.Context, []byte) (*model.Transcription, error) {
		return nil, apperr.Unavailable("backend unreachable", errors.New("dial tcp"))
	}

	require.NoError(t, r.Start(CaptureRequest{}))
	require.NoError(t, r.Write([]byte("audio")))
	err := r.Stop(context.Background())

	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
	assert.Empty(t, submitter.submitted)
	status := r.Status()
	assert.Equal(t, VoiceIdle, status.State)
	assert.Contains(t, status.LastError, "backend unreachable")
}

func TestVoiceRecorder_CancelReleasesWithoutTranscribing(t *testing.T) {
	r, clock, backend, submitter, device := newVoiceFixture()

	require.NoError(t, r.Start(CaptureRequest{}))
	require.NoError(t, r.Write([]byte("audio")))
	r.Cancel()

	assert.True(t, device.released())
	clock.Advance(2 * time.Minute)
	assert.Empty(t, backend.transcribed, "ceiling timer disarmed by cancel")
	assert.Empty(t, submitter.submitted)
	assert.True(t, apperr.Is(r.Write([]byte("late")), apperr.KindConflict))
}

func TestVoiceRecorder_PermissionDenied(t *testing.T) {
	r, _, _, _, _ := newVoiceFixture()

	err := r.Start(CaptureRequest{PermissionDenied: true})
	assert.True(t, apperr.Is(err, apperr.KindPermission))
	assert.Equal(t, VoiceIdle, r.Status().State)
	assert.Contains(t, r.Status().LastError, "microphone")
}

func TestVoiceRecorder_StateGuards(t *testing.T) {
	r, _, _, _, _ := newVoiceFixture()

	assert.True(t, apperr.Is(r.Stop(context.Background()), apperr.KindConflict))
	require.NoError(t, r.Start(CaptureRequest{}))
	assert.True(t, apperr.Is(r.Start(CaptureRequest{}), apperr.KindConflict))

	// stopping with no audio is a validation error, not a dispatch
	assert.True(t, apperr.Is(r.Stop(context.Background()), apperr.KindValidation))
}
