package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"doggobot/internal/runtime/supervisor"
	kit "doggobot/internal/transport"
	logx "doggobot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAdmin requires chat administrator or creator status, or an owner id.
	AccessAdmin
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	GroupOnly   bool

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message
	Chat    kit.ChatTarget
	From    kit.User

	Command string   // canonical command name
	Args    []string // whitespace-separated tokens after the command
	Rest    string   // raw text after the command, trimmed
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
	Owners  []int64
}

// Reply answers the request's message with plain text.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ReplyTo: r.replyID(), DisablePreview: true})
	return err
}

// ReplyHTML answers with HTML parse mode.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ReplyTo: r.replyID(), ParseMode: "HTML", DisablePreview: true})
	return err
}

func (r *Request) replyID() int {
	if r.Message == nil {
		return 0
	}
	return r.Message.ID
}

// IsOwner reports whether the sender is a configured owner.
func (r *Request) IsOwner() bool { return isOwner(r.From.ID, r.Owners) }

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases -> command
	ordered  []Command
	owners   []int64
	botName  string
	timeout  time.Duration

	// non-command updates
	onText HandlerFunc
	onJoin HandlerFunc

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		commands: map[string]*Command{},
		owners:   append([]int64(nil), owners...),
		timeout:  10 * time.Second,
		log:      log,
		adapter:  adapter,
		jobs:     make(chan func(), 256),
	}
}

// SetOwners updates the owner list. Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	ownCopy := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = ownCopy
	m.mu.Unlock()
}

// SetDefaultTimeout bounds every handler that has no own Timeout.
func (m *CommandManager) SetDefaultTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// SetBotUsername makes "/cmd@otherbot" ignored in groups with several bots.
func (m *CommandManager) SetBotUsername(name string) {
	m.mu.Lock()
	m.botName = strings.ToLower(strings.TrimPrefix(name, "@"))
	m.mu.Unlock()
}

// OnText handles plain (non-command) text from humans.
func (m *CommandManager) OnText(h HandlerFunc) {
	m.mu.Lock()
	m.onText = h
	m.mu.Unlock()
}

// OnJoin handles new chat members.
func (m *CommandManager) OnJoin(h HandlerFunc) {
	m.mu.Lock()
	m.onJoin = h
	m.mu.Unlock()
}

func (m *CommandManager) snapshot() (owners []int64, timeout time.Duration, botName string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...), m.timeout, m.botName
}

// Commands returns the registered commands in registration order.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.ordered...)
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	table := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		ordered = append(ordered, cc)
	}
	for i := range ordered {
		c := &ordered[i]
		table[c.Name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := table[a]; !exists {
				table[a] = c
			}
		}
	}

	m.mu.Lock()
	m.commands = table
	m.ordered = ordered
	m.mu.Unlock()

	// Best-effort Telegram /menu autocomplete update.
	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(ordered)
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}
		m.runMu.Lock()
		sup := m.sup
		m.runMu.Unlock()
		if sup != nil {
			sup.Go0("telegram.menu.update", run)
		} else {
			go run(context.Background())
		}
	}
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates to a bounded worker pool until ctx is done or
// updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := m.route(ctx, up)
			if job != nil && !m.tryEnqueue(job) {
				m.log.Warn("job queue full; update dropped", logx.Int64("chat_id", up.Message.ChatID))
			}
		}
	}
}

// Process routes one update and runs its handler on the calling goroutine.
func (m *CommandManager) Process(ctx context.Context, up kit.Update) {
	if job := m.route(ctx, up); job != nil {
		job()
	}
}

// route resolves an update to a ready-to-run job, or nil when nothing handles it.
func (m *CommandManager) route(root context.Context, up kit.Update) func() {
	if up.Message == nil {
		return nil
	}
	switch up.Kind {
	case kit.UpdateMessage:
		return m.routeMessage(root, up)
	case kit.UpdateJoin:
		m.mu.RLock()
		h := m.onJoin
		m.mu.RUnlock()
		if h != nil {
			return m.job(root, m.newRequest(up, "join", nil, ""), h, 0)
		}
	}
	return nil
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) func() {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if !strings.HasPrefix(text, "/") {
		m.mu.RLock()
		h := m.onText
		m.mu.RUnlock()
		if h == nil || msg.From.IsBot {
			return nil
		}
		return m.job(root, m.newRequest(up, "text", nil, text), h, 0)
	}

	word, rest := splitCommand(text)
	_, _, botName := m.snapshot()
	if at := strings.IndexByte(word, '@'); at >= 0 {
		target := strings.ToLower(word[at+1:])
		word = word[:at]
		if botName != "" && target != botName {
			return nil
		}
	}
	word = strings.ToLower(word)

	m.mu.RLock()
	cmd, ok := m.commands[word]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	req := m.newRequest(up, cmd.Name, strings.Fields(rest), rest)
	h := Chain(cmd.Handle, MWMetrics(cmd.Name), MWAccess(*cmd))
	return m.job(root, req, h, cmd.Timeout)
}

func (m *CommandManager) newRequest(up kit.Update, command string, args []string, rest string) *Request {
	msg := up.Message
	owners, _, _ := m.snapshot()
	rid := newReqID()
	return &Request{
		Update:  up,
		Message: msg,
		Chat:    msg.Target(),
		From:    msg.From,
		Command: command,
		Args:    args,
		Rest:    rest,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.From.ID),
			logx.String("cmd", command),
		),
		Owners: owners,
	}
}

func (m *CommandManager) job(root context.Context, req *Request, h HandlerFunc, timeout time.Duration) func() {
	if timeout <= 0 {
		_, timeout, _ = m.snapshot()
	}
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	return func() { _ = final(root, req) }
}

// splitCommand splits "/cmd@bot rest of text" into "cmd@bot" and the rest.
func splitCommand(text string) (word, rest string) {
	text = strings.TrimPrefix(text, "/")
	i := strings.IndexAny(text, " \t\n\r")
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i+1:])
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
