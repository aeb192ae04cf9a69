package generation

// DefaultPhases are display-only status lines shown while a generation is
// pending. They do not reflect server-side progress.
var DefaultPhases = []string{
	"Analyzing original video dynamics...",
	"Extracting high-resolution seed frame...",
	"Initializing Veo 3.1 Neural Engine...",
	"Synthesizing immersive advertising environment...",
	"Identifying contextual brand alignment...",
	"Generating 10-second cinematic extension...",
	"Refining temporal consistency...",
	"Applying professional color grading...",
	"Finalizing your immersive experience...",
}

// Phases hands out messages in order, wrapping at the end of the list.
// Not safe for concurrent use; each poll loop owns its own sequence.
type Phases struct {
	messages []string
	next     int
}

func NewPhases(messages []string) *Phases {
	if len(messages) == 0 {
		messages = DefaultPhases
	}
	return &Phases{messages: messages}
}

func (p *Phases) Next() string {
	msg := p.messages[p.next%len(p.messages)]
	p.next++
	return msg
}
