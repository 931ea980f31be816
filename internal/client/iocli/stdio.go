package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Stdio консоль поверх потоков процесса.
// Вывод защищен мьютексом: события сессии печатаются из других горутин.
type Stdio struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	mu  sync.Mutex
}

// NewStdio создает консоль на os.Stdin и os.Stdout
func NewStdio() *Stdio {
	return &Stdio{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
}

// NewStream создает неинтерактивную консоль на произвольных потоках
func NewStream(in io.Reader, out io.Writer) *Stdio {
	return &Stdio{
		in:  bufio.NewReader(in),
		out: out,
		fd:  -1,
	}
}

func (s *Stdio) Println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	if prompt != "" {
		s.Printf("%s", prompt)
	}
	input, err := s.in.ReadString('\n')
	if err != nil {
		// последняя строка без перевода строки
		if err == io.EOF && input != "" {
			return strings.TrimSpace(input), nil
		}
		return "", err
	}
	return strings.TrimRight(input, " \t\r\n"), nil
}

func (s *Stdio) Interactive() bool {
	return s.fd >= 0 && term.IsTerminal(s.fd)
}
