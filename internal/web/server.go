// Package web serves the browser page that hosts both UI surfaces, streams
// the live preview, and relays playback lifecycle replies.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/surface"
)

//go:embed assets/index.html
var indexHTML []byte

const defaultStartWait = 2 * time.Second

// View is the full presentation state mirrored to every page.
type View struct {
	PrimaryVisible  bool    `json:"primary_visible"`
	PrimaryOpacity  float64 `json:"primary_opacity"`
	OverrideVisible bool    `json:"override_visible"`
	Playing         bool    `json:"playing"`
	StatusText      string  `json:"status_text"`
	StatusColor     string  `json:"status_color"`
}

type command struct {
	Type     string `json:"type"`
	View     *View  `json:"view,omitempty"`
	Playback uint64 `json:"playback,omitempty"`
	// At is the offset in seconds a late-joining page resumes from.
	At float64 `json:"at,omitempty"`
}

type reply struct {
	Type     string `json:"type"`
	Playback uint64 `json:"playback"`
	Error    string `json:"error,omitempty"`
}

type broadcaster interface {
	BroadcastJSON(any) error
	ClientCount() int
}

type playback struct {
	id      uint64
	ended   func()
	started bool
	since   time.Time
	ack     chan error
}

// Options configures the web surface server.
type Options struct {
	Listen    string
	MediaPath string
	// StartWait bounds how long StartPlayback waits for the page to confirm.
	StartWait time.Duration
	Logger    *slog.Logger
}

// Server hosts the surfaces page.
type Server struct {
	app       *fiber.App
	opts      Options
	logger    *slog.Logger
	previews  *hub
	surfaces  *hub
	out       broadcaster
	startWait time.Duration

	mu         sync.Mutex
	view       View
	nextID     uint64
	inProgress *playback
}

// New builds the server; call Run to listen.
func New(opts Options) *Server {
	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		previews:  newHub("preview", opts.Logger),
		surfaces:  newHub("surface", opts.Logger),
		startWait: opts.StartWait,
		view: View{
			PrimaryVisible: true,
			PrimaryOpacity: 1,
			StatusText:     "Monitoring",
			StatusColor:    "#22c55e",
		},
	}
	if s.startWait <= 0 {
		s.startWait = defaultStartWait
	}
	s.out = s.surfaces
	s.surfaces.onMessage = s.handleReply

	app := fiber.New(fiber.Config{
		AppName:               "wwld",
		DisableStartupMessage: true,
	})

	app.Get("/", s.handleIndex)
	app.Get("/media/override", s.handleMedia)
	app.Get("/api/view", s.handleView)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(func(conn *websocket.Conn) {
		s.previews.serve(conn)
	}))
	app.Get("/ws/surface", websocket.New(s.handleSurfaceWS))

	s.app = app
	return s
}

// Run listens on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and the HTTP server on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.previews.run(ctx)
	go s.surfaces.run(ctx)

	if s.logger != nil {
		s.logger.Info("web surface listening", "addr", ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown web surface: %w", err)
		}
		return nil
	}
}

// Primary returns the surface.Primary backed by the page.
func (s *Server) Primary() surface.Primary { return webPrimary{s} }

// Override returns the surface.Override backed by the page.
func (s *Server) Override() surface.Override { return webOverride{s} }

// View returns the current presentation state.
func (s *Server) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetStatus mirrors the status indicator into the page status pill.
func (s *Server) SetStatus(_ context.Context, status camera.Status) {
	s.update(func(v *View) {
		v.StatusText = status.Text
		v.StatusColor = status.Color
	})
}

// RunPreview pushes JPEG frames from grab at fps while a page watches.
func (s *Server) RunPreview(ctx context.Context, fps int, grab func() ([]byte, error)) {
	if fps <= 0 || grab == nil {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.previews.ClientCount() == 0 {
				continue
			}
			jpeg, err := grab()
			if err != nil {
				if s.logger != nil {
					s.logger.Debug("preview frame skipped", "error", err.Error())
				}
				continue
			}
			s.previews.broadcastBinary(jpeg)
		}
	}
}

func (s *Server) update(mutate func(*View)) {
	s.mu.Lock()
	mutate(&s.view)
	view := s.view
	s.mu.Unlock()

	if err := s.out.BroadcastJSON(command{Type: "view", View: &view}); err != nil && s.logger != nil {
		s.logger.Warn("broadcast view failed", "error", err.Error())
	}
}

func (s *Server) startPlayback(ctx context.Context, ended func()) error {
	if s.out.ClientCount() == 0 {
		return fmt.Errorf("%w: no surface page connected", surface.ErrPlaybackStart)
	}

	s.mu.Lock()
	s.nextID++
	p := &playback{id: s.nextID, ended: ended, ack: make(chan error, 1)}
	s.inProgress = p
	s.mu.Unlock()

	if err := s.out.BroadcastJSON(command{Type: "play", Playback: p.id}); err != nil {
		s.clearPlayback(p.id)
		return fmt.Errorf("%w: %w", surface.ErrPlaybackStart, err)
	}

	timer := time.NewTimer(s.startWait)
	defer timer.Stop()

	select {
	case err := <-p.ack:
		if err != nil {
			s.clearPlayback(p.id)
			return fmt.Errorf("%w: %w", surface.ErrPlaybackStart, err)
		}
		s.update(func(v *View) { v.Playing = true })
		return nil
	case <-timer.C:
		s.clearPlayback(p.id)
		return fmt.Errorf("%w: page did not confirm playback within %s", surface.ErrPlaybackStart, s.startWait)
	case <-ctx.Done():
		s.clearPlayback(p.id)
		return fmt.Errorf("%w: %w", surface.ErrPlaybackStart, ctx.Err())
	}
}

func (s *Server) stopPlayback() {
	s.mu.Lock()
	s.inProgress = nil
	s.mu.Unlock()

	_ = s.out.BroadcastJSON(command{Type: "stop"})
	s.update(func(v *View) { v.Playing = false })
}

func (s *Server) clearPlayback(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress != nil && s.inProgress.id == id {
		s.inProgress = nil
	}
}

// handleReply processes a playback lifecycle message from the page.
func (s *Server) handleReply(data []byte) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		if s.logger != nil {
			s.logger.Warn("invalid surface reply", "error", err.Error())
		}
		return
	}

	s.mu.Lock()
	p := s.inProgress
	if p == nil || p.id != r.Playback {
		s.mu.Unlock()
		return
	}

	var ended func()
	switch r.Type {
	case "playback_started":
		if !p.started {
			p.started = true
			p.since = time.Now()
			p.ack <- nil
		}
	case "playback_error":
		if !p.started {
			p.started = true
			p.ack <- errors.New(strings.TrimSpace(r.Error))
		} else {
			if s.logger != nil {
				s.logger.Warn("override playback error", "playback", r.Playback, "error", r.Error)
			}
			s.inProgress = nil
			ended = p.ended
		}
	case "playback_ended":
		if !p.started {
			p.started = true
			p.ack <- nil
		}
		s.inProgress = nil
		ended = p.ended
	}
	s.mu.Unlock()

	if ended != nil {
		// Other pages may still be playing the same clip.
		_ = s.out.BroadcastJSON(command{Type: "stop", Playback: r.Playback})
		s.update(func(v *View) { v.Playing = false })
		ended()
	}
}

func (s *Server) handleSurfaceWS(conn *websocket.Conn) {
	view := s.View()
	data, err := json.Marshal(command{Type: "view", View: &view})
	if err != nil {
		_ = conn.Close()
		return
	}
	initial := []message{{kind: jsonMessage, data: data}}
	if play, ok := s.resumeCommand(); ok {
		if payload, err := json.Marshal(play); err == nil {
			initial = append(initial, message{kind: jsonMessage, data: payload})
		}
	}
	s.surfaces.serve(conn, initial...)
}

// resumeCommand returns the play command a page joining mid-override needs.
func (s *Server) resumeCommand() (command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.inProgress
	if p == nil || !p.started {
		return command{}, false
	}
	at := 0.0
	if !p.since.IsZero() {
		at = time.Since(p.since).Seconds()
	}
	return command{Type: "play", Playback: p.id, At: at}, true
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleMedia(c *fiber.Ctx) error {
	path := strings.TrimSpace(s.opts.MediaPath)
	if path == "" {
		return fiber.ErrNotFound
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fiber.ErrNotFound
	}
	return c.SendFile(path)
}

func (s *Server) handleView(c *fiber.Ctx) error {
	return c.JSON(s.View())
}

type webPrimary struct{ s *Server }

func (p webPrimary) SetVisible(_ context.Context, visible bool) {
	p.s.update(func(v *View) { v.PrimaryVisible = visible })
}

func (p webPrimary) SetOpacity(_ context.Context, opacity float64) {
	p.s.update(func(v *View) { v.PrimaryOpacity = opacity })
}

type webOverride struct{ s *Server }

func (o webOverride) SetVisible(_ context.Context, visible bool) {
	o.s.update(func(v *View) { v.OverrideVisible = visible })
}

func (o webOverride) StartPlayback(ctx context.Context, ended func()) error {
	return o.s.startPlayback(ctx, ended)
}

func (o webOverride) StopPlayback(context.Context) {
	o.s.stopPlayback()
}
