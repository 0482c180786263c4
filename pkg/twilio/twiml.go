package twilio

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// VoiceResponse builds TwiML for webhook replies. Verbs render in the order
// they were added.
type VoiceResponse struct {
	verbs []string
}

// Say speaks text to the caller. Language defaults to Hindi when empty.
func (v *VoiceResponse) Say(text, language string) *VoiceResponse {
	if language == "" {
		language = "hi-IN"
	}
	v.verbs = append(v.verbs, fmt.Sprintf(`<Say language=%q>%s</Say>`, language, escape(text)))
	return v
}

// GatherSpeech speaks a prompt and collects the caller's spoken reply,
// posting it to action.
func (v *VoiceResponse) GatherSpeech(action, prompt string, timeoutSeconds int) *VoiceResponse {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 5
	}
	var inner string
	if prompt != "" {
		inner = fmt.Sprintf(`<Say language="hi-IN">%s</Say>`, escape(prompt))
	}
	v.verbs = append(v.verbs, fmt.Sprintf(
		`<Gather input="speech dtmf" action=%q method="POST" timeout="%d" language="hi-IN">%s</Gather>`,
		escape(action), timeoutSeconds, inner,
	))
	return v
}

func (v *VoiceResponse) Pause(seconds int) *VoiceResponse {
	if seconds <= 0 {
		seconds = 1
	}
	v.verbs = append(v.verbs, fmt.Sprintf(`<Pause length="%d"/>`, seconds))
	return v
}

func (v *VoiceResponse) Hangup() *VoiceResponse {
	v.verbs = append(v.verbs, `<Hangup/>`)
	return v
}

// Render produces the full TwiML document.
func (v *VoiceResponse) Render() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<Response>")
	for _, verb := range v.verbs {
		b.WriteString(verb)
	}
	b.WriteString("</Response>")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
