package dialogue

import (
	"fmt"
	"strings"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

// Fixed Hindi lines for the scripted parts of the call. The opening and
// closings never go through the model; only mid-call questions do.
const (
	ClosingQualified    = "बहुत बढ़िया, आपके समय के लिए धन्यवाद। हमारी टीम जल्द ही आपसे संपर्क करेगी। नमस्ते।"
	ClosingDisqualified = "ठीक है, आपके समय के लिए धन्यवाद। भविष्य में ज़रूरत हो तो हम फिर संपर्क करेंगे। नमस्ते।"
	ClosingFallback     = "माफ़ कीजिए, तकनीकी समस्या आ गई है। हम आपसे बाद में संपर्क करेंगे। धन्यवाद, नमस्ते।"
)

// OpeningLine greets the lead by name and asks for a moment of their time.
func OpeningLine(leadName string) string {
	name := strings.TrimSpace(leadName)
	if name == "" {
		return "नमस्ते, मैं वाणी बोल रही हूँ। क्या आपके पास बात करने के लिए दो मिनट हैं?"
	}
	return fmt.Sprintf("नमस्ते %s जी, मैं वाणी बोल रही हूँ। क्या आपके पास बात करने के लिए दो मिनट हैं?", name)
}

// questionBank is the deterministic fallback used when question generation
// fails; the call degrades to scripted questions instead of dying.
var questionBank = map[contractx.SlotName]string{
	contractx.SlotBudget:    "इस समाधान के लिए आपका अनुमानित बजट क्या है?",
	contractx.SlotAuthority: "क्या खरीदारी का निर्णय आप स्वयं लेते हैं, या कोई और इसमें शामिल है?",
	contractx.SlotNeed:      "अभी आपकी टीम को किस चीज़ की सबसे ज़्यादा ज़रूरत है?",
	contractx.SlotTimeline:  "आप कब तक यह समाधान लागू करना चाहेंगे?",
}

const clarifyPrefix = "माफ़ कीजिए, मैं आपकी बात समझ नहीं पाई। "

// FallbackQuestion returns the scripted question for a slot, optionally
// prefixed with a clarification apology.
func FallbackQuestion(slot contractx.SlotName, clarify bool) string {
	q, ok := questionBank[slot]
	if !ok {
		q = questionBank[contractx.SlotNeed]
	}
	if clarify {
		return clarifyPrefix + q
	}
	return q
}
