package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophtex/internal/client/api"
	"github.com/iudanet/gophtex/internal/crdt"
	"github.com/iudanet/gophtex/internal/models"
	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/internal/session"
)

const editHelp = `Lines not starting with ':' are appended to the end of the file.
  :p, :print              print the file with line numbers
  :i <pos> <text>         insert text at character position
  :d <pos> <count>        delete count characters at position
  :c <pos>                move your cursor
  :w, :who                list participants in the room
  :s, :status             show connection status
  :h, :help               show this help
  :q, :quit               leave the room`

// watchDebounce минимальный интервал между выводами текста в watch
const watchDebounce = 200 * time.Millisecond

func newEditCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [project-id] [file]",
		Short: "Edit a project file together with other participants",
		Long: `Open a project file and edit it line by line.

Without arguments the last opened file is used; the file defaults to main.tex.
Edits made while the server is unreachable are kept locally and sent after
reconnecting.

` + editHelp,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runEdit(cmd.Context(), args)
		},
	}
}

func newWatchCommand(r *root) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch [project-id] [file]",
		Short: "Follow a project file and print it on every change",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return r.cli.runWatch(ctx, args)
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 watches until interrupted)")
	return cmd
}

func newSnapshotCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <project-id> [file]",
		Short: "Print the server copy of an active file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.cli.runSnapshot(cmd.Context(), args)
		},
	}
}

// roomTarget определяет проект и файл по аргументам или последней комнате
func (c *Cli) roomTarget(ctx context.Context, args []string) (projectID, fileName string, err error) {
	switch len(args) {
	case 2:
		return args[0], models.NormalizeFileName(args[1]), nil
	case 1:
		return args[0], models.DefaultFileName, nil
	}

	last, err := c.store.GetLastRoom(ctx)
	if err != nil {
		return "", "", err
	}
	if last == "" {
		return "", "", fmt.Errorf("no file opened yet: pass <project-id> [file]")
	}
	return models.ParseRoomKey(last)
}

// openSession проверяет доступ к файлу и запускает сессию комнаты.
// Если сервер недоступен, сессия начинает работу офлайн и подключится позже.
func (c *Cli) openSession(ctx context.Context, args []string) (*session.Session, error) {
	identity, err := c.requireIdentity()
	if err != nil {
		return nil, err
	}
	projectID, fileName, err := c.roomTarget(ctx, args)
	if err != nil {
		return nil, err
	}

	project, err := c.apiClient.GetProject(ctx, projectID)
	var statusErr *api.StatusError
	switch {
	case errors.As(err, &statusErr):
		return nil, err
	case err != nil:
		c.logger.Warn("Server unreachable, editing offline", "error", err)
		c.io.Println("Server unreachable: edits are kept locally until the connection is restored.")
	case !containsFile(project.Files, fileName):
		return nil, fmt.Errorf("file %s not found in project %q", fileName, project.Name)
	}

	rooms := room.New(c.logger)
	s, err := session.New(session.Config{
		Endpoint:    c.apiClient.BaseURL(),
		ProjectID:   projectID,
		FileName:    fileName,
		Participant: identity.Participant,
		Backoff:     c.cfg.Reconnect,
	}, rooms, c.newTransport(), c.logger, session.WithOutbox(c.store))
	if err != nil {
		return nil, err
	}

	if err := c.store.SaveLastRoom(ctx, s.RoomKey()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to remember room: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Cli) runEdit(ctx context.Context, args []string) error {
	s, err := c.openSession(ctx, args)
	if err != nil {
		return err
	}

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range s.Events() {
			if ev.Err != nil {
				c.io.Printf("[%s] %v\n", ev.Status, ev.Err)
				continue
			}
			c.io.Printf("[%s]\n", ev.Status)
		}
	}()
	defer func() {
		_ = s.Close()
		<-eventsDone
	}()

	c.io.Printf("Editing %s as %s. Type :h for help.\n", s.RoomKey(), participantLabel(c.identity.Participant))

	lines := c.readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.editCommand(s, line)
			if err != nil {
				c.io.Printf("Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines читает ввод в отдельной горутине, чтобы цикл реагировал на ctx.
// Канал закрывается на конце ввода.
func (c *Cli) readLines(ctx context.Context) <-chan string {
	prompt := ""
	if c.io.Interactive() {
		prompt = "> "
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.io.ReadInput(prompt)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					c.logger.Warn("Failed to read input", "error", err)
				}
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// editCommand выполняет одну строку ввода; quit сообщает о выходе из комнаты
func (c *Cli) editCommand(s *session.Session, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, ":") {
		_, err := s.Insert(utf8.RuneCountInString(s.Text()), line+"\n")
		return false, err
	}

	name, rest, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	switch name {
	case "q", "quit":
		return true, nil
	case "h", "help":
		c.io.Println(editHelp)
	case "p", "print":
		c.printText(s.Text())
	case "s", "status":
		c.printStatusBar(s)
	case "w", "who":
		c.printParticipants(s.Participants())
	case "i", "insert":
		posArg, text, ok := strings.Cut(rest, " ")
		if !ok || text == "" {
			return false, fmt.Errorf("usage: :i <pos> <text>")
		}
		pos, err := c.position(s, posArg)
		if err != nil {
			return false, err
		}
		_, err = s.Insert(pos, text)
		return false, err
	case "d", "delete":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: :d <pos> <count>")
		}
		pos, err := c.position(s, fields[0])
		if err != nil {
			return false, err
		}
		count, err := strconv.Atoi(fields[1])
		if err != nil || count <= 0 {
			return false, fmt.Errorf("invalid count %q", fields[1])
		}
		_, err = s.Delete(pos, count)
		return false, err
	case "c", "cursor":
		pos, err := c.position(s, strings.TrimSpace(rest))
		if err != nil {
			return false, err
		}
		return false, s.SetCursor(pos)
	default:
		return false, fmt.Errorf("unknown command :%s, type :h for help", name)
	}
	return false, nil
}

func (c *Cli) position(s *session.Session, arg string) (int, error) {
	pos, err := strconv.Atoi(arg)
	if err != nil || pos < 0 {
		return 0, fmt.Errorf("invalid position %q", arg)
	}
	if length := utf8.RuneCountInString(s.Text()); pos > length {
		return 0, fmt.Errorf("position %d is beyond the end of the file (%d)", pos, length)
	}
	return pos, nil
}

func (c *Cli) printText(text string) {
	if text == "" {
		c.io.Println("(empty)")
		return
	}
	for i, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		c.io.Printf("%4d  %s\n", i+1, line)
	}
}

// printStatusBar строка состояния: соединение, комната и число участников
func (c *Cli) printStatusBar(s *session.Session) {
	indicator := "○"
	if s.Status() == session.StatusSynced {
		indicator = "●"
	}
	c.io.Printf("%s %s  %s  %d participant(s)\n", indicator, s.Status(), s.RoomKey(), len(s.Participants()))
}

func (c *Cli) printParticipants(entries []models.AwarenessEntry) {
	for _, entry := range entries {
		marker := " "
		if c.identity != nil && entry.ParticipantID == c.identity.Participant.ID {
			marker = "*"
		}
		c.io.Printf("%s %-20s %-8s cursor %d\n", marker, entry.Fields.DisplayName, entry.Fields.Color, entry.Fields.Cursor)
	}
}

func (c *Cli) runWatch(ctx context.Context, args []string) error {
	s, err := c.openSession(ctx, args)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Close()
	}()

	changed := make(chan struct{}, 1)
	unsubscribe := s.Document().Subscribe(func(crdt.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	c.io.Printf("Watching %s\n", s.RoomKey())
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	var printed string
	pending := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			if text := s.Text(); text != printed {
				printed = text
				c.io.Printf("--- %s (%s) ---\n", s.RoomKey(), s.Status())
				c.printText(text)
			}
		}
	}
}

func (c *Cli) runSnapshot(ctx context.Context, args []string) error {
	if _, err := c.requireIdentity(); err != nil {
		return err
	}
	projectID, fileName, err := c.roomTarget(ctx, args)
	if err != nil {
		return err
	}

	snapshot, err := c.apiClient.RoomSnapshot(ctx, models.NewRoomKey(projectID, fileName))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("%s is not open by anyone right now", fileName)
		}
		return err
	}

	c.io.Printf("Room %s: %d connection(s)\n", snapshot.RoomKey, snapshot.Subscribers)
	c.printParticipants(snapshot.Participants)
	c.printText(snapshot.Text)
	return nil
}

func containsFile(files []string, fileName string) bool {
	for _, f := range files {
		if models.NormalizeFileName(f) == fileName {
			return true
		}
	}
	return false
}
