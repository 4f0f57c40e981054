// Package term реализует интерактивный ввод для CLI: секреты без эха и подтверждения.
package term

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// Terminal читает ответы оператора из stdin.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	stdinfd int

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewTerminal создает Terminal поверх os.Stdin/os.Stdout.
func NewTerminal() *Terminal {
	return newTerminal(os.Stdin, os.Stdout, int(os.Stdin.Fd()))
}

func newTerminal(in io.Reader, out io.Writer, fd int) *Terminal {
	return &Terminal{
		in:           bufio.NewReader(in),
		out:          out,
		stdinfd:      fd,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// Interactive сообщает, подключен ли stdin к терминалу.
func (t *Terminal) Interactive() bool {
	return t.isTerminal(t.stdinfd)
}

// Secret запрашивает секрет (например, токен Wialon). В терминале ввод не отображается,
// иначе читается одна строка из stdin.
func (t *Terminal) Secret(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)

	var secret string
	if t.Interactive() {
		b, err := t.readPassword(t.stdinfd)
		fmt.Fprintln(t.out) // Новая строка после ввода
		if err != nil {
			return "", xerrors.Errorf("failed to read secret: %w", err)
		}
		secret = string(b)
	} else {
		line, err := t.readLine()
		if err != nil {
			return "", xerrors.Errorf("failed to read secret: %w", err)
		}
		secret = line
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", xerrors.New("empty input")
	}
	return secret, nil
}

// Confirm задает вопрос да/нет. Пустой ответ означает "нет".
func (t *Terminal) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N]: ", prompt)
	line, err := t.readLine()
	if err != nil {
		return false, xerrors.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "д", "да":
		return true, nil
	default:
		return false, nil
	}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(xerrors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
