package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/messaging"
)

// PingCommand is answered by every server unless overridden
const PingCommand = "ping"

// CommandHandler executes one native command
type CommandHandler interface {
	HandleCommand(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// CommandHandlerFunc is a function that implements CommandHandler
type CommandHandlerFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// HandleCommand implements CommandHandler
func (f CommandHandlerFunc) HandleCommand(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return f(ctx, args)
}

// Server is the native side of the bridge. It executes incoming command
// envelopes, answers them with {id, result} and emits events.
type Server struct {
	transport messaging.Transport
	handlers  map[string]CommandHandler
	builtin   map[string]bool
	logger    *slog.Logger
	timeout   time.Duration
	mu        sync.RWMutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
}

// ServerConfig configures the server
type ServerConfig struct {
	Logger         *slog.Logger
	CommandTimeout time.Duration
}

// ServerOption configures the server
type ServerOption func(*ServerConfig)

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(c *ServerConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithCommandTimeout bounds the context handed to each command handler
func WithCommandTimeout(timeout time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.CommandTimeout = timeout
	}
}

// NewServer creates a server on transport with the ping command registered
func NewServer(transport messaging.Transport, opts ...ServerOption) (*Server, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	config := &ServerConfig{
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(config)
	}

	s := &Server{
		transport: transport,
		handlers:  make(map[string]CommandHandler),
		builtin:   make(map[string]bool),
		logger:    config.Logger,
		timeout:   config.CommandTimeout,
	}

	s.handlers[PingCommand] = CommandHandlerFunc(ping)
	s.builtin[PingCommand] = true

	return s, nil
}

func ping(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"code": contracts.CodeOK,
		"pong": true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Handle registers handler for command. Built-in commands may be replaced
// once; any other duplicate registration is an error.
func (s *Server) Handle(command string, handler CommandHandler) error {
	if command == "" {
		return contracts.ErrEmptyCommand
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[command]; exists && !s.builtin[command] {
		return fmt.Errorf("handler already registered for command: %s", command)
	}

	s.handlers[command] = handler
	delete(s.builtin, command)
	s.logger.Debug("registered command handler", "command", command)
	return nil
}

// HandleFunc registers a function as the handler for command
func (s *Server) HandleFunc(command string, fn func(ctx context.Context, args json.RawMessage) (interface{}, error)) error {
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	return s.Handle(command, CommandHandlerFunc(fn))
}

// Commands returns the registered command names
func (s *Server) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commands := make([]string, 0, len(s.handlers))
	for command := range s.handlers {
		commands = append(commands, command)
	}
	sort.Strings(commands)
	return commands
}

// Start connects the transport if needed and begins serving commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	if !s.transport.IsConnected() {
		if err := s.transport.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect transport: %w", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	err := s.transport.Subscriber().Subscribe(ctx, messaging.HandlerFunc(s.onMessage))
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	s.running = true
	s.logger.Info("native host started", "commands", len(s.handlers))
	return nil
}

// Stop stops serving and waits for running commands to finish
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	err := s.transport.Subscriber().Unsubscribe()
	s.inflight.Wait()
	s.logger.Info("native host stopped")
	return err
}

// Emit publishes an event notification to the front-end
func (s *Server) Emit(ctx context.Context, event string, data interface{}) error {
	if event == "" {
		return fmt.Errorf("event name cannot be empty")
	}

	notification, err := contracts.NewEventNotification(event, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}

	if err := s.transport.Publisher().Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to emit event %s: %w", event, err)
	}
	return nil
}

func (s *Server) onMessage(body []byte) {
	req, err := contracts.ParseRequest(body)
	if err != nil {
		s.logger.Warn("dropping malformed command envelope", "error", err, "size", len(body))
		return
	}

	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return
	}
	ctx := s.ctx
	s.inflight.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.inflight.Done()
		s.execute(ctx, req)
	}()
}

func (s *Server) execute(ctx context.Context, req *contracts.Request) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := s.dispatch(ctx, req)

	if req.ID == "" {
		if err != nil {
			s.logger.Warn("command failed", "command", req.Command, "error", err)
		}
		return
	}

	var result json.RawMessage
	if err != nil {
		code, msg := failureFor(err)
		result = contracts.FailureResult(code, msg)
		s.logger.Warn("command failed", "command", req.Command, "id", req.ID, "code", code, "error", err)
	} else {
		result, err = contracts.SuccessResult(value)
		if err != nil {
			result = contracts.FailureResult(contracts.CodeInternal, fmt.Sprintf("failed to encode result: %v", err))
		}
		s.logger.Debug("command completed", "command", req.Command, "id", req.ID, "duration", time.Since(start))
	}

	if err := s.reply(ctx, req.ID, result); err != nil {
		s.logger.Error("failed to send reply", "command", req.Command, "id", req.ID, "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req *contracts.Request) (value interface{}, err error) {
	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("command handler panicked", "command", req.Command, "panic", rec)
			err = NewCommandError(contracts.CodeInternal, fmt.Sprintf("command %s panicked", req.Command))
		}
	}()

	return handler.HandleCommand(ctx, req.Args)
}

func (s *Server) reply(ctx context.Context, id string, result json.RawMessage) error {
	resp, err := contracts.NewResponse(id, result)
	if err != nil {
		return err
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	// replies outlive a cancelled server context so in-flight callers are answered
	return s.transport.Publisher().Publish(context.WithoutCancel(ctx), body)
}
