// Package nntp implements the reader/poster NNTP server of lord over the
// article store: one goroutine per accepted connection, per-connection
// current-group/current-number state, dot-stuffed multi-line replies.
package nntp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"

	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/store"
	"github.com/dmaluka/lornews/pkg/telemetry"
)

// Error is a coded NNTP error reply.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

var (
	ErrNoSuchGroup      = &Error{411, "No such newsgroup"}
	ErrNoGroupSelected  = &Error{412, "No newsgroup selected"}
	ErrNoCurrentArticle = &Error{420, "Current article number is invalid"}
	ErrNoNextArticle    = &Error{421, "No next article in this group"}
	ErrNoPrevArticle    = &Error{422, "No previous article in this group"}
	ErrNoSuchArticle    = &Error{423, "No article with that number"}
	ErrNoSuchMessageID  = &Error{430, "No article with that message-id"}
	ErrPostingFailed    = &Error{441, "Posting failed"}
	ErrUnknownCommand   = &Error{500, "Unknown command"}
	ErrSyntax           = &Error{501, "Bad syntax"}
	ErrNoOverByID       = &Error{503, "Overview by message-id unsupported"}
)

// handler serves one command.
type handler func(s *session, args []string) error

// Server is the NNTP front-end.
type Server struct {
	Root    string
	Catalog *config.Catalog
	PostCmd string

	handlers map[string]handler
}

// session is the per-connection state. The current group and number live
// here, never in process-wide variables.
type session struct {
	srv *Server
	c   *textproto.Conn

	group  string
	number int64 // 0 when no valid current article
}

// NewServer builds a server over the store rooted at root.
func NewServer(root string, cat *config.Catalog, postCmd string) *Server {
	srv := &Server{Root: root, Catalog: cat, PostCmd: postCmd}
	srv.handlers = map[string]handler{
		"help":         handleHelp,
		"capabilities": handleCapabilities,
		"date":         handleDate,
		"mode":         handleMode,
		"quit":         handleQuit,
		"group":        handleGroup,
		"listgroup":    handleListGroup,
		"last":         handleLast,
		"next":         handleNext,
		"article":      handleArticle,
		"head":         handleHead,
		"body":         handleBody,
		"stat":         handleStat,
		"newgroups":    handleNewGroups,
		"newnews":      handleNewNews,
		"list":         handleList,
		"over":         handleOver,
		"xover":        handleOver,
		"post":         handlePost,
	}
	return srv
}

// ListenAndServe runs the accept loop. It returns only on a fatal
// listener error.
func (srv *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info("listening", "addr", addr)
	for {
		nc, err := l.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go srv.Process(nc)
	}
}

// Process serves one connection until QUIT, client disconnect or an
// unrecoverable error.
func (srv *Server) Process(nc net.Conn) {
	defer nc.Close()
	telemetry.Connections.Inc()

	c := textproto.NewConn(nc)
	s := &session{srv: srv, c: c}

	if err := c.PrintfLine("200 lord/%s", config.Version); err != nil {
		return
	}
	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := strings.ToLower(fields[0])
		telemetry.Commands.WithLabelValues(cmd).Inc()

		h, ok := srv.handlers[cmd]
		if !ok {
			h = func(*session, []string) error { return ErrUnknownCommand }
		}
		err = h(s, fields[1:])
		if err == nil {
			continue
		}
		var proto *Error
		var broken *store.BrokenIndexError
		switch {
		case err == io.EOF:
			return
		case errors.As(err, &broken):
			// store integrity is the one thing a worker does not
			// recover from
			logger.Error("store_integrity", "error", err)
			c.PrintfLine("403 Internal fault")
			return
		case errors.As(err, &proto):
			if err := c.PrintfLine("%d %s", proto.Code, proto.Msg); err != nil {
				return
			}
		default:
			logger.Error("connection_error", "remote", nc.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// withGroup runs fn under the group's lock. A catalog group that has
// never been pulled has no directory yet; fn then receives a nil index
// and must treat the group as empty.
func (s *session) withGroup(name string, fn func(ix *store.Index) error) error {
	ix, err := store.Open(s.srv.Root, name, store.ReadOnly)
	if err != nil {
		if errors.Is(err, store.ErrNoSuchGroup) {
			return fn(nil)
		}
		return err
	}
	defer ix.Close()
	return fn(ix)
}

// stats returns (count, min, max) treating a never-pulled group as empty.
func stats(ix *store.Index) (count, min, max int64) {
	if ix == nil {
		return 0, 1, 0
	}
	return ix.Count(), ix.Min(), ix.Max()
}
