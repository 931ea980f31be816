// Package iocli ввод и вывод консольного клиента.
package iocli

//go:generate moq -out io_mock.go . IO

// IO консоль клиента
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	// ReadInput читает строку без завершающих пробелов; на конце ввода возвращает io.EOF
	ReadInput(prompt string) (string, error)
	// Interactive сообщает, что ввод идет с терминала
	Interactive() bool
}
