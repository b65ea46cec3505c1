package logging

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyJSONHandler is a slog.Handler that prints one indented JSON object
// per record. Values implementing fmt.Stringer or error are written as their
// string form, so points, facings and actions read as they print.
//
// Not optimized for throughput.
type PrettyJSONHandler struct {
	w           io.Writer
	mu          *sync.Mutex
	level       slog.Leveler
	addSource   bool
	replaceAttr func(groups []string, a slog.Attr) slog.Attr

	attrs  []groupedAttr
	groups []string
}

// groupedAttr remembers the groups open when WithAttrs was called.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

func NewPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyJSONHandler {
	h := &PrettyJSONHandler{
		w:     w,
		mu:    &sync.Mutex{},
		level: slog.LevelInfo,
	}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
		h.replaceAttr = opts.ReplaceAttr
	}
	return h
}

func (h *PrettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 6+len(h.attrs))

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	h.put(payload, nil, slog.Time(slog.TimeKey, when))
	h.put(payload, nil, slog.String(slog.LevelKey, r.Level.String()))
	h.put(payload, nil, slog.String(slog.MessageKey, r.Message))
	if h.addSource {
		if src := sourceFromPC(r.PC); src != "" {
			h.put(payload, nil, slog.String(slog.SourceKey, src))
		}
	}

	for _, ga := range h.attrs {
		h.put(payload, ga.groups, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(payload, h.groups, a)
		return true
	})

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		b = []byte("{\"time\":" + strconv.Quote(when.Format(time.RFC3339Nano)) +
			",\"level\":" + strconv.Quote(r.Level.String()) +
			",\"msg\":" + strconv.Quote(r.Message) +
			",\"log_error\":" + strconv.Quote(err.Error()) + "}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append([]groupedAttr(nil), h.attrs...)
	groups := append([]string(nil), h.groups...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, groupedAttr{groups: groups, attr: a})
	}
	return &clone
}

func (h *PrettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *PrettyJSONHandler) put(root map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if h.replaceAttr != nil && a.Value.Kind() != slog.KindGroup {
		a = h.replaceAttr(groups, a)
		a.Value = a.Value.Resolve()
	}
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}

	dst := root
	for _, g := range groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if len(members) == 0 {
			return
		}
		// An inline group (empty key) merges into the current level.
		sub := append(append([]string(nil), groups...), a.Key)
		if a.Key == "" {
			sub = groups
		}
		for _, ga := range members {
			h.put(root, sub, ga)
		}
		return
	}
	dst[a.Key] = valueToAny(a.Value)
}

func valueToAny(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case json.Marshaler, encoding.TextMarshaler:
			return x
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.String()
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
