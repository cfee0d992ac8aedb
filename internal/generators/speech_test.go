package generators

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
)

const (
	speechEndpoint = "https://speech.test/api/v1"
	speechSubmit   = speechEndpoint + "/services/audio/tts/synthesis"
	speechTask     = speechEndpoint + "/tasks/tts-1"
	speechAudio    = "https://oss.test/tts-1.mp3"
)

func newSpeechOrchestrator(t *testing.T, mock *httpmock.MockTransport, objects ObjectStore, sleeper *recordingSleeper) *SpeechOrchestrator {
	t.Helper()
	orch, err := NewSpeechOrchestrator(SpeechOrchestratorDeps{
		Config: SpeechConfig{
			Endpoint: speechEndpoint,
			APIKey:   "tts-key",
			Poll:     PollConfig{MaxPolls: 5},
		},
		Objects:    objects,
		HTTPClient: mockClient(mock),
		Clock:      fixedClock,
		Sleep:      sleeper.Sleep,
	})
	require.NoError(t, err)
	return orch
}

func TestSpeechGenerateSubmitsPollsAndStores(t *testing.T) {
	mock := httpmock.NewMockTransport()
	var submitted speechSubmitRequest
	mock.RegisterResponder(http.MethodPost, speechSubmit, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tts-key", req.Header.Get("Authorization"))
		assert.Equal(t, "enable", req.Header.Get("X-DashScope-Async"))
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &submitted))
		return httpmock.NewStringResponse(http.StatusOK, `{"output":{"task_id":"tts-1","task_status":"PENDING"}}`), nil
	})
	mock.RegisterResponder(http.MethodGet, speechTask,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_status":"RUNNING"}}`).
			Then(httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_status":"SUCCEEDED","audio_url":"`+speechAudio+`"}}`)))
	mock.RegisterResponder(http.MethodGet, speechAudio, func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get("Authorization"))
		return httpmock.NewBytesResponse(http.StatusOK, []byte("mp3-bytes")), nil
	})

	objects := newMemoryObjects()
	sleeper := &recordingSleeper{}
	orch := newSpeechOrchestrator(t, mock, objects, sleeper)

	asset, err := orch.Generate(context.Background(), "I need water", "")
	require.NoError(t, err)

	want := domain.AudioKey("I need water", "longxiaochun")
	assert.Equal(t, want.ObjectPath(), asset.Location)
	assert.Equal(t, "I need water", submitted.Input.Text)
	assert.Equal(t, "longxiaochun", submitted.Parameters.Voice)
	assert.Equal(t, "cosyvoice-v1", submitted.Model)
	assert.Equal(t, 2, mock.GetCallCountInfo()["GET "+speechTask])
	assert.Equal(t, 1, sleeper.count())

	stored, ok := objects.get(want.ObjectPath())
	require.True(t, ok)
	assert.Equal(t, "mp3-bytes", string(stored))

	_, err = orch.Generate(context.Background(), "i need  water", "longxiaochun")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetCallCountInfo()["POST "+speechSubmit])
}

func TestSpeechGenerateReadsResultsList(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, speechSubmit,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_id":"tts-1"}}`))
	mock.RegisterResponder(http.MethodGet, speechTask,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_status":"SUCCEEDED","results":[{"url":"`+speechAudio+`"}]}}`))
	mock.RegisterResponder(http.MethodGet, speechAudio,
		httpmock.NewBytesResponder(http.StatusOK, []byte("mp3")))

	orch := newSpeechOrchestrator(t, mock, newMemoryObjects(), &recordingSleeper{})
	_, err := orch.Generate(context.Background(), "hello", "longwan")
	require.NoError(t, err)
}

func TestSpeechGenerateReportsFailedTask(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, speechSubmit,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_id":"tts-1"}}`))
	mock.RegisterResponder(http.MethodGet, speechTask,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_status":"FAILED","message":"quota"}}`))

	orch := newSpeechOrchestrator(t, mock, newMemoryObjects(), &recordingSleeper{})
	_, err := orch.Generate(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "quota")
}

func TestSpeechGenerateTimesOut(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, speechSubmit,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_id":"tts-1"}}`))
	mock.RegisterResponder(http.MethodGet, speechTask,
		httpmock.NewStringResponder(http.StatusOK, `{"output":{"task_status":"RUNNING"}}`))

	orch := newSpeechOrchestrator(t, mock, newMemoryObjects(), &recordingSleeper{})
	_, err := orch.Generate(context.Background(), "hello", "")
	assert.True(t, IsJobTimeout(err))
	assert.Equal(t, 5, mock.GetCallCountInfo()["GET "+speechTask])
}

func TestSpeechValidatesVoiceAndText(t *testing.T) {
	mock := httpmock.NewMockTransport()
	orch := newSpeechOrchestrator(t, mock, newMemoryObjects(), &recordingSleeper{})

	_, err := orch.Generate(context.Background(), "hello", "robot")
	assert.ErrorIs(t, err, ErrUnknownVoice)

	_, err = orch.Generate(context.Background(), strings.Repeat("a", maxSpeechRunes+1), "")
	assert.ErrorIs(t, err, ErrTextTooLong)

	_, err = orch.Generate(context.Background(), "   ", "")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "validate", genErr.Op)

	assert.Zero(t, mock.GetTotalCallCount())

	key, err := orch.Key("hello", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AudioKey("hello", "longxiaochun"), key)
}
