package conversation

import (
	"fmt"
	"strings"
)

// Gemini Live wire messages. Field names follow the JSON mapping of the
// BidiGenerateContent protos. []byte fields are base64 on the wire.

type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupMessage struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	Tools                    []tool           `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content           `json:"modelTurn,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	GroundingMetadata   *groundingMetadata `json:"groundingMetadata,omitempty"`
	InputTranscription  *transcription     `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription     `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *Citation `json:"web,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// modelName returns the resource name the setup message expects.
func modelName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// audioMIMEType is the MIME type of outbound PCM16 at rate.
func audioMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// newSetup builds the setup message for a session.
func newSetup(cfg *Config, sc SessionConfig) *setupMessage {
	model := sc.Model
	if model == "" {
		model = cfg.Model
	}
	voice := sc.Voice
	if voice == "" {
		voice = cfg.Voice
	}

	setup := &setupMessage{
		Model: modelName(model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if sc.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: sc.SystemInstruction}}}
	}
	if sc.GoogleSearch {
		setup.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	if sc.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if sc.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return setup
}

// dispatch delivers one serverContent to the handlers, in the order
// transcription, turn completion, grounding, audio, interruption.
// It returns the number of audio bytes delivered.
func (h *handlers) dispatch(sc *serverContent) int {
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		h.emitTranscript(DirectionInput, t.Text)
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		h.emitTranscript(DirectionOutput, t.Text)
	}

	if sc.TurnComplete {
		h.emitTurnComplete()
	}

	if gm := sc.GroundingMetadata; gm != nil && gm.GroundingChunks != nil {
		citations := make([]Citation, 0, len(gm.GroundingChunks))
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				citations = append(citations, *chunk.Web)
			}
		}
		h.emitGrounding(citations)
	}

	var audioBytes int
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			audioBytes += len(p.InlineData.Data)
			h.emitAudio(p.InlineData.Data)
		}
	}

	if sc.Interrupted {
		h.emitInterruption()
	}
	return audioBytes
}
