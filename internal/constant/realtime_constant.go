package constant

// Realtime event types, inbound from kiosk clients and operators.
const (
	EventUserDetected  = "user_detected"
	EventUserLost      = "user_lost"
	EventUserMessage   = "user_message"
	EventUserAudio     = "user_audio"
	EventWizardMessage = "wizard_message"
)

// Realtime event types emitted by the server.
const (
	EventRobotMessage        = "robot_message"
	EventRegistrationSuccess = "registration_success"
	EventAnimation           = "animation"
	EventIdentityEvent       = "identity_event"
	EventError               = "error"
)

// Metadata keys attached to logged conversation messages.
const (
	MetaProactive = "proactive"
	MetaKind      = "kind"
	MetaOperator  = "operator"
	MetaSource    = "source"

	KindGreeting     = "greeting"
	KindNamePrompt   = "name_prompt"
	KindNameReprompt = "name_reprompt"
	KindIntroduction = "introduction"
)
