package form

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileForm reads its text from a string or file and writes the output either
// to a file (replacing its content) or to a writer such as stdout. Both
// receive the translation exactly, with no trailing newline added.
type FileForm struct {
	text  string
	flags map[string]bool

	mu         sync.Mutex
	outputPath string
	out        io.Writer
	last       string
	err        error
}

// NewFileForm builds a form around already-loaded text. When outputPath is
// empty the output goes to out.
func NewFileForm(text string, scansion, ipa bool, outputPath string, out io.Writer) *FileForm {
	return &FileForm{
		text: text,
		flags: map[string]bool{
			FlagScansion: scansion,
			FlagIPA:      ipa,
		},
		outputPath: outputPath,
		out:        out,
	}
}

// LoadText returns inline when inlineSet, even if it is empty, otherwise the
// content of path. A path of "-" reads from in.
func LoadText(inline string, inlineSet bool, path string, in io.Reader) (string, error) {
	if inlineSet {
		return inline, nil
	}
	if path == "" {
		return "", fmt.Errorf("no input text: use --text or --input")
	}
	if path == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return string(b), nil
}

func (f *FileForm) Text() string { return f.text }

func (f *FileForm) Flag(name string) bool { return f.flags[name] }

func (f *FileForm) SetOutput(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = s
	if f.outputPath == "" {
		if f.out != nil {
			_, f.err = fmt.Fprint(f.out, s)
		}
		return
	}

	if err := os.MkdirAll(filepath.Dir(f.outputPath), 0755); err != nil {
		f.err = fmt.Errorf("failed to create output directory: %w", err)
		return
	}
	if err := os.WriteFile(f.outputPath, []byte(s), 0644); err != nil {
		f.err = fmt.Errorf("failed to write output file: %w", err)
		return
	}
	f.err = nil
}

// Output returns the last value written.
func (f *FileForm) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Err reports the error from the most recent write, if any.
func (f *FileForm) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
