package meta

// =============================================================================
// demo
// =============================================================================

// Demo service names.
const (
	DemoName        = "demo"
	LettersDemoName = "demo-letters"
	WordDemoName    = "demo-word"
)

// NewLettersDemo returns the first demo module: HELLO must be ASCII letters.
func NewLettersDemo() *Module {
	return NewModule(LettersDemoName, []FieldRule{
		{
			Field:   "HELLO",
			Check:   MatchPattern(LettersOnly),
			Message: StaticMessage("HELLO is only letters"),
		},
	}, nil)
}

// NewWordDemo returns the demo module accepting word characters in HELLO.
// The message echoes the rejected value.
func NewWordDemo() *Module {
	return NewModule(WordDemoName, []FieldRule{helloWordRule}, nil)
}

// NewDemo returns the demo module that also greets in hello.txt.
func NewDemo() *Module {
	return NewModule(DemoName, []FieldRule{helloWordRule}, map[string]string{
		"hello.txt": "Hello ${HELLO}",
	})
}

var helloWordRule = FieldRule{
	Field:   "HELLO",
	Check:   MatchPattern(WordCharacters),
	Message: BracketMessage("is only letters"),
}
