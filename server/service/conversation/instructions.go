package conversation

// Channel identifies the inbound channel of an exchange. It selects the
// system instruction (tone and length constraints differ per channel) and
// shows up in structured logs.
type Channel string

const (
	ChannelWeb  Channel = "web"
	ChannelSMS  Channel = "sms"
	ChannelUSSD Channel = "ussd"
)

// groundingDirective is appended to every channel instruction: the model
// should prefer grounded, current facts over its own unstated knowledge.
const groundingDirective = " Prioritize verified, current information from trusted sources over your own unstated knowledge. Use web search for the latest guidance."

// systemInstructions holds the per-channel provider instructions. Kept as
// one enumerated table rather than literals scattered through handlers.
var systemInstructions = map[Channel]string{
	ChannelWeb:  "You are AskDokita, a helpful health assistant. Answer in clear, complete prose." + groundingDirective,
	ChannelSMS:  "You are AskDokita, a health assistant replying over SMS. Keep the whole reply under 160 characters." + groundingDirective,
	ChannelUSSD: "You are AskDokita, a health assistant replying over USSD. Keep the whole reply under 140 characters." + groundingDirective,
}

// instructionFor returns the system instruction for a channel, defaulting
// to the web instruction for unknown channels.
func instructionFor(channel Channel) string {
	if instruction, ok := systemInstructions[channel]; ok {
		return instruction
	}
	return systemInstructions[ChannelWeb]
}
