// Package form abstracts the input and output fields a dispatcher reads and
// writes, so the same cycle can drive a terminal, a file, or a test double.
package form

import "sync"

// Flag names recognised by the dispatcher.
const (
	FlagScansion = "with_scansion"
	FlagIPA      = "with_ipa"
)

// Form is the capability handed to a dispatcher: two reads and one write.
type Form interface {
	Text() string
	Flag(name string) bool
	SetOutput(s string)
}

// MemoryForm keeps all fields in memory. It is safe for concurrent use.
type MemoryForm struct {
	mu     sync.Mutex
	text   string
	flags  map[string]bool
	output string
	writes int
}

func NewMemoryForm(text string, scansion, ipa bool) *MemoryForm {
	return &MemoryForm{
		text: text,
		flags: map[string]bool{
			FlagScansion: scansion,
			FlagIPA:      ipa,
		},
	}
}

func (f *MemoryForm) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

// Flag reports the checked state of name; unknown names are unchecked.
func (f *MemoryForm) Flag(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[name]
}

func (f *MemoryForm) SetOutput(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output = s
	f.writes++
}

func (f *MemoryForm) SetText(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = s
}

func (f *MemoryForm) SetFlag(name string, checked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags == nil {
		f.flags = make(map[string]bool)
	}
	f.flags[name] = checked
}

func (f *MemoryForm) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output
}

// Writes returns how many times SetOutput has been called.
func (f *MemoryForm) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
