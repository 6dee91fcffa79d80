package orchestration

import (
	"fmt"

	"github.com/aria-vtuber/aria-core/core/llms"
)

type recordingControlArguments struct {
	// Action is "pause" to stop listening to the microphone or "resume"
	// to start again.
	Action string `json:"action" jsonschema:"enum=pause,enum=resume,description=Whether to pause or resume microphone listening."`
}

type speakingControlArguments struct {
	Action string `json:"action" jsonschema:"enum=stop,description=Stop the current speech playback."`
}

// builtinTools are always advertised to the model so it can manage its
// own microphone and voice.
func (e *Engine) builtinTools() []llms.Tool {
	recordingControl := llms.NewTool(
		"recording_control",
		"Pause or resume listening to the user's microphone.",
		func(arguments recordingControlArguments) (string, error) {
			switch arguments.Action {
			case "pause":
				e.micPaused.Store(true)
				return "microphone paused", nil
			case "resume":
				e.micPaused.Store(false)
				return "microphone resumed", nil
			default:
				return "", fmt.Errorf("unknown recording action %q", arguments.Action)
			}
		},
	)

	speakingControl := llms.NewTool(
		"speaking_control",
		"Immediately stop any speech that is currently playing.",
		func(arguments speakingControlArguments) (string, error) {
			if arguments.Action != "stop" {
				return "", fmt.Errorf("unknown speaking action %q", arguments.Action)
			}
			e.pipeline.Reset()
			return "speech stopped", nil
		},
	)

	return []llms.Tool{recordingControl, speakingControl}
}
