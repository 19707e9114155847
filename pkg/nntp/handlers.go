package nntp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/pattern"
	"github.com/dmaluka/lornews/pkg/store"
)

func handleHelp(s *session, args []string) error {
	if err := s.c.PrintfLine("100 Help text follows"); err != nil {
		return err
	}
	dw := s.c.DotWriter()
	fmt.Fprintln(dw, "ARTICLE [number|<message-id>]")
	fmt.Fprintln(dw, "BODY [number|<message-id>]")
	fmt.Fprintln(dw, "CAPABILITIES [keyword]")
	fmt.Fprintln(dw, "DATE")
	fmt.Fprintln(dw, "GROUP newsgroup")
	fmt.Fprintln(dw, "HEAD [number|<message-id>]")
	fmt.Fprintln(dw, "HELP")
	fmt.Fprintln(dw, "LAST")
	fmt.Fprintln(dw, "LIST [ACTIVE|NEWSGROUPS [pattern]|OVERVIEW.FMT]")
	fmt.Fprintln(dw, "LISTGROUP [newsgroup [range]]")
	fmt.Fprintln(dw, "MODE READER")
	fmt.Fprintln(dw, "NEWGROUPS yymmdd hhmmss [GMT]")
	fmt.Fprintln(dw, "NEWNEWS pattern yymmdd hhmmss [GMT]")
	fmt.Fprintln(dw, "NEXT")
	fmt.Fprintln(dw, "OVER [range]")
	fmt.Fprintln(dw, "POST")
	fmt.Fprintln(dw, "QUIT")
	fmt.Fprintln(dw, "STAT [number|<message-id>]")
	return dw.Close()
}

func handleCapabilities(s *session, args []string) error {
	if len(args) > 1 {
		return ErrSyntax
	}
	if err := s.c.PrintfLine("101 Capability list:"); err != nil {
		return err
	}
	dw := s.c.DotWriter()
	fmt.Fprintln(dw, "VERSION 2")
	fmt.Fprintf(dw, "IMPLEMENTATION lord/%s\n", config.Version)
	fmt.Fprintln(dw, "READER")
	fmt.Fprintln(dw, "NEWNEWS")
	fmt.Fprintln(dw, "LIST ACTIVE NEWSGROUPS OVERVIEW.FMT")
	fmt.Fprintln(dw, "OVER")
	fmt.Fprintln(dw, "POST")
	return dw.Close()
}

func handleDate(s *session, args []string) error {
	if len(args) != 0 {
		return ErrSyntax
	}
	return s.c.PrintfLine("111 %s", time.Now().UTC().Format("20060102150405"))
}

func handleMode(s *session, args []string) error {
	if len(args) != 1 || !strings.EqualFold(args[0], "reader") {
		return ErrSyntax
	}
	return s.c.PrintfLine("200 Posting allowed")
}

func handleQuit(s *session, args []string) error {
	s.c.PrintfLine("205 Goodbye")
	return io.EOF
}

func handleGroup(s *session, args []string) error {
	if len(args) != 1 {
		return ErrSyntax
	}
	name := args[0]
	if s.srv.Catalog.Find(name) == nil {
		return ErrNoSuchGroup
	}
	return s.withGroup(name, func(ix *store.Index) error {
		count, min, max := stats(ix)
		if err := s.c.PrintfLine("211 %d %d %d %s", count, min, max, name); err != nil {
			return err
		}
		s.group = name
		if count > 0 {
			s.number = min
		} else {
			s.number = 0
		}
		return nil
	})
}

func handleListGroup(s *session, args []string) error {
	if len(args) > 2 {
		return ErrSyntax
	}
	name := s.group
	if len(args) >= 1 {
		name = args[0]
		if s.srv.Catalog.Find(name) == nil {
			return ErrNoSuchGroup
		}
	}
	if name == "" {
		return ErrNoGroupSelected
	}
	return s.withGroup(name, func(ix *store.Index) error {
		count, min, max := stats(ix)
		lo, hi := min, max
		if len(args) == 2 {
			var err error
			lo, hi, err = parseRange(args[1], min, max)
			if err != nil {
				return err
			}
		}
		if err := s.c.PrintfLine("211 %d %d %d %s list follows", count, min, max, name); err != nil {
			return err
		}
		s.group = name
		if count > 0 {
			s.number = min
		} else {
			s.number = 0
		}
		dw := s.c.DotWriter()
		if ix != nil {
			for _, n := range ix.Scan(lo, hi) {
				fmt.Fprintf(dw, "%d\n", n)
			}
		}
		return dw.Close()
	})
}

func handleLast(s *session, args []string) error {
	return s.seek(-1, ErrNoPrevArticle)
}

func handleNext(s *session, args []string) error {
	return s.seek(+1, ErrNoNextArticle)
}

// seek moves the current article pointer to the nearest live number in the
// given direction.
func (s *session) seek(dir int64, atEnd *Error) error {
	if s.group == "" {
		return ErrNoGroupSelected
	}
	if s.number == 0 {
		return ErrNoCurrentArticle
	}
	return s.withGroup(s.group, func(ix *store.Index) error {
		if ix == nil {
			return ErrNoCurrentArticle
		}
		for n := s.number + dir; n >= ix.Min() && n <= ix.Max(); n += dir {
			topic, comment, ok := ix.Number(n)
			if !ok {
				continue
			}
			s.number = n
			return s.c.PrintfLine("223 %d %s", n, article.MessageID(topic, comment))
		}
		return atEnd
	})
}

func handleArticle(s *session, args []string) error {
	return s.sendArticle(args, 220, true, true)
}

func handleHead(s *session, args []string) error {
	return s.sendArticle(args, 221, true, false)
}

func handleBody(s *session, args []string) error {
	return s.sendArticle(args, 222, false, true)
}

func handleStat(s *session, args []string) error {
	return s.sendArticle(args, 223, false, false)
}

// sendArticle implements ARTICLE/HEAD/BODY/STAT: resolve the target by
// number, message-id or current pointer, then emit the selected part with
// dot-stuffing.
func (s *session) sendArticle(args []string, code int, withHead, withBody bool) error {
	if len(args) > 1 {
		return ErrSyntax
	}
	num, msgid, data, err := s.resolveArticle(args)
	if err != nil {
		return err
	}
	if err := s.c.PrintfLine("%d %d %s", code, num, msgid); err != nil {
		return err
	}
	if !withHead && !withBody {
		return nil
	}

	head, body, _ := bytes.Cut(data, []byte("\n\n"))
	dw := s.c.DotWriter()
	if withHead {
		dw.Write(head)
		dw.Write([]byte("\n"))
	}
	if withHead && withBody {
		dw.Write([]byte("\n"))
	}
	if withBody {
		dw.Write(body)
	}
	return dw.Close()
}

// resolveArticle finds the requested article and reads its file while the
// group lock is held. The reported number is 0 when a message-id lookup
// landed outside the current group.
func (s *session) resolveArticle(args []string) (num int64, msgid string, data []byte, err error) {
	if len(args) == 1 && strings.HasPrefix(args[0], "<") {
		loc, err := store.ByMessageID(s.srv.Root, s.srv.Catalog, args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, "", nil, ErrNoSuchMessageID
			}
			var broken *store.BrokenIndexError
			if errors.As(err, &broken) {
				return 0, "", nil, err
			}
			return 0, "", nil, ErrNoSuchMessageID
		}
		data, err := os.ReadFile(loc.Path)
		if err != nil {
			return 0, "", nil, ErrNoSuchMessageID
		}
		num := int64(0)
		if loc.Group == s.group {
			num = loc.Number
		}
		return num, args[0], data, nil
	}

	if s.group == "" {
		return 0, "", nil, ErrNoGroupSelected
	}

	var n int64
	if len(args) == 0 {
		if s.number == 0 {
			return 0, "", nil, ErrNoCurrentArticle
		}
		n = s.number
	} else {
		var perr error
		n, perr = strconv.ParseInt(args[0], 10, 64)
		if perr != nil || n < 1 {
			return 0, "", nil, ErrSyntax
		}
	}

	err = s.withGroup(s.group, func(ix *store.Index) error {
		if ix == nil {
			return missErr(len(args) == 0)
		}
		topic, comment, ok := ix.Number(n)
		if !ok {
			return missErr(len(args) == 0)
		}
		path := ix.FilePath(topic, comment)
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read article %s: %w", path, rerr)
		}
		num = n
		msgid = article.MessageID(topic, comment)
		data = b
		s.number = n
		return nil
	})
	return num, msgid, data, err
}

// missErr distinguishes a stale current pointer from an unknown number.
func missErr(current bool) *Error {
	if current {
		return ErrNoCurrentArticle
	}
	return ErrNoSuchArticle
}

func handleNewGroups(s *session, args []string) error {
	since, err := parseDateTime(args)
	if err != nil {
		return err
	}
	cdate, err := config.CreationDate(s.srv.Root)
	if err != nil {
		return err
	}
	if err := s.c.PrintfLine("231 list of new newsgroups follows"); err != nil {
		return err
	}
	if cdate.Before(since) {
		// no group is newer than the query: the listing is just "."
		return s.c.PrintfLine(".")
	}
	dw := s.c.DotWriter()
	for _, g := range s.srv.Catalog.Groups {
		if err := s.withGroup(g.Name, func(ix *store.Index) error {
			_, min, max := stats(ix)
			fmt.Fprintf(dw, "%s %d %d y\n", g.Name, max, min)
			return nil
		}); err != nil {
			dw.Close()
			return err
		}
	}
	return dw.Close()
}

func handleNewNews(s *session, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return ErrSyntax
	}
	pat, err := pattern.Compile(args[0])
	if err != nil {
		return ErrSyntax
	}
	since, err := parseDateTime(args[1:])
	if err != nil {
		return err
	}
	if err := s.c.PrintfLine("230 list of new articles follows"); err != nil {
		return err
	}
	var ids []string
	for _, g := range s.srv.Catalog.Groups {
		if !pat.Match(g.Name) {
			continue
		}
		if err := s.withGroup(g.Name, func(ix *store.Index) error {
			if ix == nil {
				return nil
			}
			for n := ix.Min(); n <= ix.Max(); n++ {
				ts, ok := ix.Timestamp(n)
				if !ok || ts.Before(since) {
					continue
				}
				if topic, comment, ok := ix.Number(n); ok {
					ids = append(ids, article.MessageID(topic, comment))
				}
			}
			return nil
		}); err != nil {
			s.c.PrintfLine(".")
			return err
		}
	}
	// an unused DotWriter would send a blank line before the "."
	if len(ids) == 0 {
		return s.c.PrintfLine(".")
	}
	dw := s.c.DotWriter()
	for _, id := range ids {
		fmt.Fprintf(dw, "%s\n", id)
	}
	return dw.Close()
}

func handleList(s *session, args []string) error {
	kind := "active"
	if len(args) > 0 {
		kind = strings.ToLower(args[0])
	}
	pat := pattern.All
	switch kind {
	case "active", "newsgroups":
		if len(args) > 2 {
			return ErrSyntax
		}
		if len(args) == 2 {
			var err error
			pat, err = pattern.Compile(args[1])
			if err != nil {
				return ErrSyntax
			}
		}
	case "overview.fmt":
		if len(args) != 1 {
			return ErrSyntax
		}
		if err := s.c.PrintfLine("215 Order of fields in overview database"); err != nil {
			return err
		}
		dw := s.c.DotWriter()
		fmt.Fprintln(dw, "Subject:")
		fmt.Fprintln(dw, "From:")
		fmt.Fprintln(dw, "Date:")
		fmt.Fprintln(dw, "Message-ID:")
		fmt.Fprintln(dw, "References:")
		fmt.Fprintln(dw, "Bytes:")
		fmt.Fprintln(dw, "Lines:")
		fmt.Fprintln(dw, "X-Stars:full")
		return dw.Close()
	default:
		return ErrSyntax
	}

	if err := s.c.PrintfLine("215 list of newsgroups follows"); err != nil {
		return err
	}
	var lines []string
	for _, g := range s.srv.Catalog.Groups {
		if !pat.Match(g.Name) {
			continue
		}
		if kind == "newsgroups" {
			lines = append(lines, g.Name+" "+g.Description)
			continue
		}
		if err := s.withGroup(g.Name, func(ix *store.Index) error {
			_, min, max := stats(ix)
			lines = append(lines, fmt.Sprintf("%s %d %d y", g.Name, max, min))
			return nil
		}); err != nil {
			s.c.PrintfLine(".")
			return err
		}
	}
	// an unused DotWriter would send a blank line before the "."
	if len(lines) == 0 {
		return s.c.PrintfLine(".")
	}
	dw := s.c.DotWriter()
	for _, l := range lines {
		fmt.Fprintf(dw, "%s\n", l)
	}
	return dw.Close()
}

func handleOver(s *session, args []string) error {
	if len(args) > 1 {
		return ErrSyntax
	}
	if len(args) == 1 && strings.HasPrefix(args[0], "<") {
		return ErrNoOverByID
	}
	if s.group == "" {
		return ErrNoGroupSelected
	}
	return s.withGroup(s.group, func(ix *store.Index) error {
		_, min, max := stats(ix)
		lo, hi := min, max
		if len(args) == 1 {
			var err error
			lo, hi, err = parseRange(args[0], min, max)
			if err != nil {
				return err
			}
		} else {
			if s.number == 0 {
				return ErrNoCurrentArticle
			}
			lo, hi = s.number, s.number
		}
		if err := s.c.PrintfLine("224 Overview information follows"); err != nil {
			return err
		}
		var nums []int64
		if ix != nil {
			nums = ix.Scan(lo, hi)
		}
		// an unused DotWriter would send a blank line before the "."
		if len(nums) == 0 {
			return s.c.PrintfLine(".")
		}
		dw := s.c.DotWriter()
		for _, n := range nums {
			ov, ok := ix.Overview(n)
			if !ok {
				continue
			}
			fmt.Fprintf(dw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\tX-Stars: %s\n",
				n,
				article.DecodeHeader(ov.Subject),
				article.DecodeHeader(ov.From),
				ov.Date, ov.MessageID, ov.References,
				ov.Bytes, ov.Lines, ov.Stars)
		}
		return dw.Close()
	})
}

func handlePost(s *session, args []string) error {
	if len(args) != 0 {
		return ErrSyntax
	}
	if err := s.c.PrintfLine("340 Send article to be posted, end with <CR-LF>.<CR-LF>"); err != nil {
		return err
	}
	// fully buffered: a dropped connection here must not reach the poster
	data, err := s.c.ReadDotBytes()
	if err != nil {
		return err
	}

	parts := strings.Fields(s.srv.PostCmd)
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := lastLine(stderr.String())
		if msg == "" {
			msg = "Something failed"
		}
		logger.Warn("post_failed", "error", err, "detail", msg)
		return s.c.PrintfLine("441 %s", msg)
	}
	return s.c.PrintfLine("240 Article posted at LOR")
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// parseRange parses the N, N- and N-M range forms. An open N- range ends
// at max; the bounds are not clamped here (Scan clamps them to the group).
func parseRange(spec string, min, max int64) (lo, hi int64, err error) {
	los, his, dashed := strings.Cut(spec, "-")
	lo, err = strconv.ParseInt(los, 10, 64)
	if err != nil || lo < 0 {
		return 0, 0, ErrSyntax
	}
	switch {
	case !dashed:
		hi = lo
	case his == "":
		hi = max
	default:
		hi, err = strconv.ParseInt(his, 10, 64)
		if err != nil || hi < 0 {
			return 0, 0, ErrSyntax
		}
	}
	return lo, hi, nil
}

// parseDateTime parses the yymmdd/yyyymmdd hhmmss [GMT] argument pair of
// NEWGROUPS and NEWNEWS. Times are interpreted as UTC.
func parseDateTime(args []string) (time.Time, error) {
	if len(args) < 2 || len(args) > 3 {
		return time.Time{}, ErrSyntax
	}
	if len(args) == 3 && !strings.EqualFold(args[2], "gmt") {
		return time.Time{}, ErrSyntax
	}
	date, clock := args[0], args[1]
	var layout string
	switch len(date) {
	case 6:
		layout = "060102"
		// two-digit years: 69..99 are 19xx, 00..68 are 20xx (time package rule)
	case 8:
		layout = "20060102"
	default:
		return time.Time{}, ErrSyntax
	}
	if len(clock) != 6 {
		return time.Time{}, ErrSyntax
	}
	t, err := time.ParseInLocation(layout+"150405", date+clock, time.UTC)
	if err != nil {
		return time.Time{}, ErrSyntax
	}
	return t, nil
}
