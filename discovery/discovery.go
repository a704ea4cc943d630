package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("no announcement found")

// Entry is the information published by an announcer.
type Entry struct {
	URL       string `json:"url"`
	PublicKey string `json:"public_key,omitempty"`
}

type handler struct {
	body []byte
}

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.body)
}

// Announcer publishes an Entry on the first free port of a range.
type Announcer struct {
	port   uint16
	server *http.Server
}

func Announce(entry Entry, opts ...Option) (*Announcer, error) {
	s := applyOptions(opts)
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	var l net.Listener
	var port uint16
	err = fmt.Errorf("empty port range %d-%d", s.startPort, s.endPort)
	for p := uint32(s.startPort); p <= uint32(s.endPort); p++ {
		l, err = net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(int(p))))
		if err == nil {
			port = uint16(p)
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}

	a := &Announcer{
		port:   port,
		server: &http.Server{Handler: handler{body: body}},
	}
	go func() {
		_ = a.server.Serve(l)
	}()
	return a, nil
}

func (a *Announcer) Port() uint16 {
	return a.port
}

func (a *Announcer) Close() error {
	return a.server.Shutdown(context.Background())
}

// Find scans the port range for announcements and returns every entry found
// in the first scan that found any.
func Find(ctx context.Context, opts ...Option) ([]Entry, error) {
	s := applyOptions(opts)
	client := &http.Client{Timeout: s.timeout}
	for attempt := uint(0); attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.interval):
			}
		}
		if entries := search(ctx, client, s); len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, ErrNotFound
}

func search(ctx context.Context, client *http.Client, s settings) []Entry {
	var entries []Entry
	for p := uint32(s.startPort); p <= uint32(s.endPort); p++ {
		url := "http://" + net.JoinHostPort(s.host, strconv.Itoa(int(p)))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		var e Entry
		err = json.NewDecoder(resp.Body).Decode(&e)
		resp.Body.Close()
		if err != nil || e.URL == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
