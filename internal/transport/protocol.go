package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/rehearse/internal/interview"
)

// Client → server message types.
const (
	msgStartRecording = "start_recording"
	msgStopRecording  = "stop_recording"
	msgPlaybackEnded  = "playback_ended"
	msgPlaybackFailed = "playback_failed"
	msgNetwork        = "network"
	msgMute           = "mute"
	msgRetry          = "retry"
	msgLeave          = "leave"
)

// Server → client message types.
const (
	msgState              = "state"
	msgPlayAudio          = "play_audio"
	msgSpeakLocal         = "speak_local"
	msgForceStopRecording = "force_stop_recording"
	msgThinking           = "thinking"
	msgSilence            = "silence"
	msgNotice             = "notice"
)

// clientMessage is any message the browser sends. Audio is base64 in JSON.
type clientMessage struct {
	Type       string `json:"type"`
	Audio      []byte `json:"audio,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	MIME       string `json:"mime,omitempty"`
	PlaybackID string `json:"playback_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Online     *bool  `json:"online,omitempty"`
	Muted      *bool  `json:"muted,omitempty"`
}

// serverMessage is any message the server sends.
type serverMessage struct {
	Type       string           `json:"type"`
	State      *interview.State `json:"state,omitempty"`
	PlaybackID string           `json:"playback_id,omitempty"`
	Audio      []byte           `json:"audio,omitempty"`
	Format     string           `json:"format,omitempty"`
	Model      string           `json:"model,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
	Text       string           `json:"text,omitempty"`
	Level      string           `json:"level,omitempty"`
}

var errMissingField = errors.New("missing field")

// toEvent converts a client message into a machine event. Playback reports
// are not events and yield (nil, nil).
func toEvent(m clientMessage) (interview.Event, error) {
	switch m.Type {
	case msgStartRecording:
		return interview.StartRecording{}, nil
	case msgStopRecording:
		return interview.StopRecording{
			Audio:    m.Audio,
			MIMEType: m.MIME,
			Duration: time.Duration(m.DurationMS) * time.Millisecond,
		}, nil
	case msgNetwork:
		if m.Online == nil {
			return nil, fmt.Errorf("%s: online: %w", m.Type, errMissingField)
		}
		return interview.Network{Online: *m.Online}, nil
	case msgMute:
		if m.Muted == nil {
			return nil, fmt.Errorf("%s: muted: %w", m.Type, errMissingField)
		}
		return interview.Mute{Muted: *m.Muted}, nil
	case msgRetry:
		return interview.Retry{}, nil
	case msgLeave:
		return interview.Leave{}, nil
	case msgPlaybackEnded, msgPlaybackFailed:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown message type %q", m.Type)
}
